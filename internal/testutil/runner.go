package testutil

import (
	"context"
	"maps"
	"sync"

	"github.com/bugsnag/lambda-e2e/internal/maze"
)

// ServiceCall is one command captured by RecordingRunner.
type ServiceCall struct {
	Scenario string
	Service  string
	Command  string
	Env      maze.Environment
}

// RecordingRunner is a maze.ServiceRunner that records commands instead
// of running them.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingRunner struct {
	mu    sync.Mutex
	calls []ServiceCall

	// Fail, when set, decides the error returned for a call.
	Fail func(service, command string) error
}

// RunService records the call and returns the result of Fail, if any.
func (r *RecordingRunner) RunService(ctx context.Context, service, command string, env maze.Environment) error {
	r.mu.Lock()
	r.calls = append(r.calls, ServiceCall{
		Scenario: maze.ScenarioFromContext(ctx),
		Service:  service,
		Command:  command,
		Env:      maps.Clone(env),
	})
	fail := r.Fail
	r.mu.Unlock()

	if fail != nil {
		return fail(service, command)
	}
	return nil
}

// Calls returns the recorded calls in order.
func (r *RecordingRunner) Calls() []ServiceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceCall(nil), r.calls...)
}

// Commands returns just the recorded command lines.
func (r *RecordingRunner) Commands() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Command
	}
	return out
}
