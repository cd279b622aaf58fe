package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugsnag/lambda-e2e/internal/maze"
	"github.com/bugsnag/lambda-e2e/internal/testutil"
)

type seqIDs struct{ n int }

func (g *seqIDs) Generate() string {
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.Now = testutil.NewStepClock(time.Minute).Now
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := Open(path)
	require.NoError(t, err)
	s1.IDs = testutil.NewFixedIDGenerator("kept")
	_, err = s1.BeginRun(context.Background(), "3.9")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
}

func TestOpen_BadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "history.db"))
	assert.Error(t, err)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestUUIDGenerator(t *testing.T) {
	id, err := uuid.Parse(UUIDGenerator{}.Generate())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestBeginRun(t *testing.T) {
	s := createTestStore(t)
	s.IDs = testutil.NewFixedIDGenerator("run-a")

	run, err := s.BeginRun(context.Background(), "3.12")
	require.NoError(t, err)
	assert.Equal(t, "run-a", run.ID)
	assert.Equal(t, "3.12", run.RuntimeVersion)
	assert.Equal(t, testutil.Epoch, run.StartedAt)

	// Duplicate IDs are rejected by the primary key.
	_, err = s.BeginRun(context.Background(), "3.12")
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	s := createTestStore(t)
	s.IDs = testutil.NewFixedIDGenerator("run-a")
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "3.9")
	require.NoError(t, err)

	require.NoError(t, run.Record(ctx, maze.Record{
		Scenario: "Handled exception",
		Service:  "aws-lambda",
		Command:  "sam build BugsnagAwsLambdaTestFunction",
		Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, run.Record(ctx, maze.Record{
		Scenario: "Cafe\u0301 crash",
		Service:  "aws-lambda",
		Command:  "sam local invoke BugsnagAwsLambdaTestFunction",
		ExitCode: 2,
		Duration: 250 * time.Millisecond,
		Err:      errors.New("exit status 2"),
	}))

	got, err := s.Invocations(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, Invocation{
		RunID:    "run-a",
		Seq:      1,
		Scenario: "Handled exception",
		Service:  "aws-lambda",
		Command:  "sam build BugsnagAwsLambdaTestFunction",
		Duration: 1500 * time.Millisecond,
	}, got[0])
	assert.False(t, got[0].Failed())

	assert.Equal(t, int64(2), got[1].Seq)
	assert.Equal(t, "Caf\u00e9 crash", got[1].Scenario)
	assert.Equal(t, 2, got[1].ExitCode)
	assert.Equal(t, "exit status 2", got[1].Error)
	assert.True(t, got[1].Failed())
}

func TestRecord_ImplementsRecorder(t *testing.T) {
	s := createTestStore(t)
	run, err := s.BeginRun(context.Background(), "3.9")
	require.NoError(t, err)

	var rec maze.Recorder = run
	require.NoError(t, rec.Record(context.Background(), maze.Record{Service: "plain", Command: "true"}))
}

func TestInvocations_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Invocations(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInvocations_EmptyRun(t *testing.T) {
	s := createTestStore(t)
	run, err := s.BeginRun(context.Background(), "3.9")
	require.NoError(t, err)

	got, err := s.Invocations(context.Background(), run.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	s.IDs = &seqIDs{}
	ctx := context.Background()

	for i, version := range []string{"3.8", "3.9", "3.10"} {
		run, err := s.BeginRun(ctx, version)
		require.NoError(t, err)
		for j := 0; j <= i; j++ {
			require.NoError(t, run.Record(ctx, maze.Record{
				Service:  "aws-lambda",
				Command:  "sam build",
				ExitCode: j % 2,
			}))
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, []string{"run-3", "run-2", "run-1"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Equal(t, "3.10", runs[0].RuntimeVersion)
	assert.Equal(t, 3, runs[0].Invocations)
	assert.Equal(t, 1, runs[0].Failures)
	assert.Equal(t, 1, runs[2].Invocations)
	assert.Equal(t, 0, runs[2].Failures)
	assert.Equal(t, testutil.Epoch.Add(2*time.Minute), runs[0].StartedAt)

	limited, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.ID)
}

func TestLatestRun_Empty(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestScenarioInvocations(t *testing.T) {
	s := createTestStore(t)
	s.IDs = &seqIDs{}
	ctx := context.Background()

	for range 2 {
		run, err := s.BeginRun(ctx, "3.9")
		require.NoError(t, err)
		require.NoError(t, run.Record(ctx, maze.Record{Scenario: "Cafe\u0301", Service: "aws-lambda", Command: "sam build"}))
		require.NoError(t, run.Record(ctx, maze.Record{Scenario: "other", Service: "aws-lambda", Command: "sam build"}))
	}

	got, err := s.ScenarioInvocations(ctx, "Caf\u00e9")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
}

func TestRecord_ClosedStore(t *testing.T) {
	s := createTestStore(t)
	run, err := s.BeginRun(context.Background(), "3.9")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = run.Record(context.Background(), maze.Record{Service: "aws-lambda", Command: "sam build"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record invocation")
}
