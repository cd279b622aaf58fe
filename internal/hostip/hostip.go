// Package hostip works out the address a Lambda container uses to reach
// the harness running on the host.
package hostip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// DockerDesktopHost resolves to the host from inside Docker Desktop containers.
const DockerDesktopHost = "host.docker.internal"

// Listing sources accepted by NewResolver.
const (
	SourceSystem   = "system"
	SourceIfconfig = "ifconfig"
)

// ErrNoAddress is returned when a listing has no non-loopback IPv4 address.
var ErrNoAddress = errors.New("no non-loopback IPv4 address found")

// Lister returns an interface listing in ifconfig's text form.
type Lister func(ctx context.Context) (string, error)

// Resolver picks the harness host for the current machine.
type Resolver struct {
	// DockerDesktop short-circuits to DockerDesktopHost.
	DockerDesktop bool
	List          Lister
}

// NewResolver returns a resolver reading interfaces from source. Docker
// Desktop is assumed on macOS or when forceDesktop is set.
func NewResolver(source string, forceDesktop bool) (*Resolver, error) {
	r := &Resolver{DockerDesktop: forceDesktop || IsDockerDesktop()}
	switch source {
	case "", SourceSystem:
		r.List = SystemListing
	case SourceIfconfig:
		r.List = IfconfigListing
	default:
		return nil, fmt.Errorf("unknown interface source %q", source)
	}
	return r, nil
}

// IsDockerDesktop reports whether containers run under Docker Desktop.
func IsDockerDesktop() bool {
	return runtime.GOOS == "darwin"
}

// Resolve returns the host name or IPv4 address of the harness.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if r.DockerDesktop {
		return DockerDesktopHost, nil
	}
	if r.List == nil {
		return "", errors.New("no interface lister configured")
	}
	listing, err := r.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}
	return ParseListing(listing)
}

var inetPattern = regexp.MustCompile(`inet (?:addr:)?((?:[0-9]{1,3}\.){3}[0-9]{1,3})`)

// ParseListing returns the first IPv4 address in an ifconfig-style listing
// that is not a loopback address. Both "inet 10.0.0.2" and the older
// "inet addr:10.0.0.2" forms are recognised.
func ParseListing(listing string) (string, error) {
	for _, m := range inetPattern.FindAllStringSubmatch(listing, -1) {
		ip := net.ParseIP(m[1])
		if ip == nil || ip.IsLoopback() {
			continue
		}
		return m[1], nil
	}
	return "", ErrNoAddress
}

// SystemListing renders the host's interface addresses as ifconfig-style
// "inet" lines, in interface order.
func SystemListing(ctx context.Context) (string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, iface := range ifaces {
		fmt.Fprintf(&b, "%s:\n", iface.Name)
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.To4() == nil {
				continue
			}
			fmt.Fprintf(&b, "\tinet %s\n", ip.To4())
		}
	}
	return b.String(), nil
}

// IfconfigListing runs ifconfig and returns its output.
func IfconfigListing(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "ifconfig").Output()
	if err != nil {
		return "", fmt.Errorf("ifconfig: %w", err)
	}
	return string(out), nil
}
