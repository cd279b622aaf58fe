package maze

import (
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Variables injected into every fixture process.
const (
	EnvAPIKey          = "BUGSNAG_API_KEY"
	EnvErrorEndpoint   = "BUGSNAG_ERROR_ENDPOINT"
	EnvSessionEndpoint = "BUGSNAG_SESSION_ENDPOINT"
)

// Endpoint paths served by the capture server.
const (
	NotifyPath   = "/notify"
	SessionsPath = "/sessions"
)

// Environment is a set of variables layered over the host environment of
// a service process. It lives for one scenario.
type Environment map[string]string

// ScenarioEnvironment returns the API key and endpoint variables for a
// fixture that reaches the harness at host:port.
func ScenarioEnvironment(apiKey, host string, port int) Environment {
	return Environment{
		EnvAPIKey:          apiKey,
		EnvErrorEndpoint:   Endpoint(host, port, NotifyPath),
		EnvSessionEndpoint: Endpoint(host, port, SessionsPath),
	}
}

// Endpoint builds an http URL for path on host:port.
func Endpoint(host string, port int, path string) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// Lookup returns the overlay value for name.
func (e Environment) Lookup(name string) (string, bool) {
	v, ok := e[name]
	return v, ok
}

// Keys returns the variable names in sorted order.
func (e Environment) Keys() []string {
	return slices.Sorted(maps.Keys(e))
}

// Slice renders the overlay as sorted KEY=VALUE pairs.
func (e Environment) Slice() []string {
	out := make([]string, 0, len(e))
	for _, k := range e.Keys() {
		out = append(out, k+"="+e[k])
	}
	return out
}

// Merge layers the overlay over base, a KEY=VALUE list such as
// os.Environ(). Overlay values win; base order is kept and new
// variables are appended in sorted order.
func (e Environment) Merge(base []string) []string {
	out := make([]string, 0, len(base)+len(e))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := e[name]; ok {
			continue
		}
		out = append(out, kv)
	}
	return append(out, e.Slice()...)
}
