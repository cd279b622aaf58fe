package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a run with its invocation counts.
type RunSummary struct {
	ID             string    `json:"id" yaml:"id"`
	RuntimeVersion string    `json:"runtime_version" yaml:"runtime_version"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
	Invocations    int       `json:"invocations" yaml:"invocations"`
	Failures       int       `json:"failures" yaml:"failures"`
}

// Invocation is one recorded service command.
type Invocation struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Seq      int64         `json:"seq" yaml:"seq"`
	Scenario string        `json:"scenario" yaml:"scenario"`
	Service  string        `json:"service" yaml:"service"`
	Command  string        `json:"command" yaml:"command"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the command did not exit cleanly.
func (i Invocation) Failed() bool {
	return i.ExitCode != 0 || i.Error != ""
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT r.id, r.runtime_version, r.started_at,
		       COUNT(i.seq),
		       COALESCE(SUM(CASE WHEN i.exit_code != 0 OR i.error != '' THEN 1 ELSE 0 END), 0)
		FROM runs r
		LEFT JOIN invocations i ON i.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			run     RunSummary
			started string
		)
		if err := rows.Scan(&run.ID, &run.RuntimeVersion, &started, &run.Invocations, &run.Failures); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (RunSummary, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return RunSummary{}, err
	}
	if len(runs) == 0 {
		return RunSummary{}, ErrRunNotFound
	}
	return runs[0], nil
}

// Invocations returns the commands of a run in execution order.
func (s *Store) Invocations(ctx context.Context, runID string) ([]Invocation, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	return s.queryInvocations(ctx, `
		SELECT run_id, seq, scenario, service, command, exit_code, duration_ms, error
		FROM invocations
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ScenarioInvocations returns every recorded command for a scenario
// across all runs, oldest run first.
func (s *Store) ScenarioInvocations(ctx context.Context, scenario string) ([]Invocation, error) {
	return s.queryInvocations(ctx, `
		SELECT i.run_id, i.seq, i.scenario, i.service, i.command, i.exit_code, i.duration_ms, i.error
		FROM invocations i
		JOIN runs r ON r.id = i.run_id
		WHERE i.scenario = ?
		ORDER BY r.started_at ASC, i.run_id COLLATE BINARY ASC, i.seq ASC
	`, norm.NFC.String(scenario))
}

func (s *Store) queryInvocations(ctx context.Context, query string, args ...any) ([]Invocation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	invocations := []Invocation{}
	for rows.Next() {
		var (
			inv        Invocation
			durationMS int64
		)
		if err := rows.Scan(&inv.RunID, &inv.Seq, &inv.Scenario, &inv.Service, &inv.Command,
			&inv.ExitCode, &durationMS, &inv.Error); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.Duration = time.Duration(durationMS) * time.Millisecond
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}
