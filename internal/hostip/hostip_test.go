package hostip

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linuxIfconfig = `lo: flags=73<UP,LOOPBACK,RUNNING>  mtu 65536
        inet 127.0.0.1  netmask 255.0.0.0
        inet6 ::1  prefixlen 128  scopeid 0x10<host>

eth0: flags=4163<UP,BROADCAST,RUNNING,MULTICAST>  mtu 1500
        inet 172.17.0.4  netmask 255.255.0.0  broadcast 172.17.255.255
        ether 02:42:ac:11:00:04  txqueuelen 0  (Ethernet)

eth1: flags=4163<UP,BROADCAST,RUNNING,MULTICAST>  mtu 1500
        inet 10.1.2.3  netmask 255.0.0.0
`

const legacyIfconfig = `lo        Link encap:Local Loopback
          inet addr:127.0.0.1  Mask:255.0.0.0

eth0      Link encap:Ethernet  HWaddr 02:42:ac:11:00:02
          inet addr:192.168.10.7  Bcast:192.168.10.255  Mask:255.255.255.0
`

func TestParseListing(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		want    string
	}{
		{"modern ifconfig", linuxIfconfig, "172.17.0.4"},
		{"net-tools ifconfig", legacyIfconfig, "192.168.10.7"},
		{"loopback range skipped", "inet 127.0.1.1\ninet 10.0.0.9\n", "10.0.0.9"},
		{"first match wins", "inet 10.0.0.1\ninet 10.0.0.2\n", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseListing(tt.listing)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseListing_NoAddress(t *testing.T) {
	for _, listing := range []string{"", "inet 127.0.0.1\n", "inet6 fe80::1\n"} {
		_, err := ParseListing(listing)
		assert.ErrorIs(t, err, ErrNoAddress)
	}
}

func TestResolver_DockerDesktop(t *testing.T) {
	called := false
	r := &Resolver{
		DockerDesktop: true,
		List: func(context.Context) (string, error) {
			called = true
			return linuxIfconfig, nil
		},
	}

	host, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DockerDesktopHost, host)
	assert.False(t, called)
}

func TestResolver_Listing(t *testing.T) {
	r := &Resolver{List: func(context.Context) (string, error) { return legacyIfconfig, nil }}

	host, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.168.10.7", host)
}

func TestResolver_Errors(t *testing.T) {
	r := &Resolver{List: func(context.Context) (string, error) { return "", errors.New("boom") }}
	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list interfaces")

	r = &Resolver{List: func(context.Context) (string, error) { return "inet 127.0.0.1", nil }}
	_, err = r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoAddress)

	r = &Resolver{}
	_, err = r.Resolve(context.Background())
	assert.Error(t, err)
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver(SourceIfconfig, true)
	require.NoError(t, err)
	assert.True(t, r.DockerDesktop)
	assert.NotNil(t, r.List)

	r, err = NewResolver("", false)
	require.NoError(t, err)
	assert.Equal(t, IsDockerDesktop(), r.DockerDesktop)

	_, err = NewResolver("netlink", false)
	assert.Error(t, err)
}

func TestSystemListing_Parses(t *testing.T) {
	listing, err := SystemListing(context.Background())
	require.NoError(t, err)

	got, err := ParseListing(listing)
	if errors.Is(err, ErrNoAddress) {
		t.Skip("host has no non-loopback IPv4 address")
	}
	require.NoError(t, err)
	ip := net.ParseIP(got)
	require.NotNil(t, ip)
	assert.False(t, ip.IsLoopback())
}
