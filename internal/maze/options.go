// Package maze holds the harness side of the suite: the options the
// request-capture harness runs with, the per-scenario environment handed
// to fixtures, and the "run a service with a command" primitive.
//
// The capture server itself is external. Fixtures reach it through the
// endpoints in the scenario Environment.
package maze

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultPort is the port the capture server listens on.
const DefaultPort = 9339

// Options configures the harness. It is built once before the first
// scenario and passed by value afterwards.
type Options struct {
	// FileLog sends logs to a file under LogDir instead of the console.
	FileLog bool
	LogDir  string

	// LogRequests logs every service command and its output at info level.
	LogRequests bool

	// ReceiveRequestsWait bounds how long the harness waits for requests.
	ReceiveRequestsWait time.Duration
	// ReceiveNoRequestsWait is how long the harness waits to confirm that
	// no request arrives.
	ReceiveNoRequestsWait time.Duration
	// ReceiveRequestsSlowThreshold logs a warning when a service command
	// runs longer than this.
	ReceiveRequestsSlowThreshold time.Duration

	// EnforceBugsnagIntegrity requires the Bugsnag-Integrity header on
	// received payloads. The Python notifier does not send it.
	EnforceBugsnagIntegrity bool

	Port int
}

// Harness settings exported to the compose process, so the compose file
// can forward them to the capture server.
const (
	EnvReceiveRequestsWait   = "MAZE_RECEIVE_REQUESTS_WAIT"
	EnvReceiveNoRequestsWait = "MAZE_RECEIVE_NO_REQUESTS_WAIT"
	EnvEnforceIntegrity      = "MAZE_ENFORCE_BUGSNAG_INTEGRITY"
)

// Environ returns the harness settings as KEY=VALUE pairs. Waits are in
// whole seconds.
func (o Options) Environ() []string {
	return []string{
		EnvReceiveRequestsWait + "=" + seconds(o.ReceiveRequestsWait),
		EnvReceiveNoRequestsWait + "=" + seconds(o.ReceiveNoRequestsWait),
		EnvEnforceIntegrity + "=" + strconv.FormatBool(o.EnforceBugsnagIntegrity),
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

// DefaultOptions returns the options the Lambda suite runs with.
func DefaultOptions() Options {
	return Options{
		FileLog:                      false,
		LogDir:                       "maze_output",
		LogRequests:                  true,
		ReceiveRequestsWait:          10 * time.Second,
		ReceiveNoRequestsWait:        10 * time.Second,
		ReceiveRequestsSlowThreshold: 5 * time.Second,
		EnforceBugsnagIntegrity:      false,
		Port:                         DefaultPort,
	}
}

// Validate reports options the harness cannot run with.
func (o Options) Validate() error {
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("invalid harness port %d", o.Port)
	}
	if o.ReceiveRequestsWait < 0 || o.ReceiveNoRequestsWait < 0 {
		return fmt.Errorf("request wait must not be negative")
	}
	if o.ReceiveRequestsSlowThreshold < 0 {
		return fmt.Errorf("slow request threshold must not be negative")
	}
	if o.FileLog && o.LogDir == "" {
		return fmt.Errorf("file logging requires a log directory")
	}
	return nil
}
