package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/bugsnag/lambda-e2e/internal/maze"
)

// Run is an open suite run. It implements maze.Recorder.
type Run struct {
	ID             string
	RuntimeVersion string
	StartedAt      time.Time

	store *Store

	mu  sync.Mutex
	seq int64
}

var _ maze.Recorder = (*Run)(nil)

// BeginRun inserts a new run and returns it.
func (s *Store) BeginRun(ctx context.Context, runtimeVersion string) (*Run, error) {
	run := &Run{
		ID:             s.newID(),
		RuntimeVersion: runtimeVersion,
		StartedAt:      s.now().UTC(),
		store:          s,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, runtime_version, started_at)
		VALUES (?, ?, ?)
	`, run.ID, run.RuntimeVersion, run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// Record appends rec to the run. Scenario names are stored in NFC so
// that equivalent names compare equal.
func (r *Run) Record(ctx context.Context, rec maze.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errText := ""
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	seq := r.seq + 1
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO invocations
		(run_id, seq, scenario, service, command, exit_code, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		seq,
		norm.NFC.String(rec.Scenario),
		rec.Service,
		rec.Command,
		rec.ExitCode,
		rec.Duration.Milliseconds(),
		errText,
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}

	r.seq = seq
	return nil
}
