package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qsync/internal/ir"
	"github.com/roach88/qsync/internal/mutation"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		j, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		j.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	tests := []struct{ name, want string }{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		got, err := j.pragma(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestOpen_Memory(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.RecordRun(context.Background(), mutation.Record{RunID: "r1", Mutation: "m", Seq: 1, StartedAt: t0}))
	entries, err := j.Runs(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRuns_EmptyJournal(t *testing.T) {
	j := createTestJournal(t)
	entries, err := j.Runs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	seq, err := j.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestRecord_RunAndOutcome(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordRun(ctx, mutation.Record{
		RunID: "r2", Mutation: "deleteDoctor", RowID: "d9", Input: []byte(`"d9"`), Seq: 7, StartedAt: t0,
	}))
	require.NoError(t, j.RecordRun(ctx, mutation.Record{
		RunID: "r1", Mutation: "approveDoctor", RowID: "d1", Input: []byte(`"d1"`), Seq: 3, StartedAt: t0,
	}))
	require.NoError(t, j.RecordOutcome(ctx, mutation.Outcome{
		RunID: "r1", Status: mutation.StatusSuccess,
		Invalidated: []ir.Key{ir.K("doctors", "pending"), ir.K("doctors", "approved")},
		FinishedAt:  t0.Add(time.Second),
	}))
	require.NoError(t, j.RecordOutcome(ctx, mutation.Outcome{
		RunID: "r1", Status: mutation.StatusError, ErrKind: "server", FinishedAt: t0,
	}), "second outcome is ignored")

	entries, err := j.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "r1", first.RunID)
	assert.Equal(t, mutation.StatusSuccess, first.Status)
	assert.Equal(t, `"d1"`, string(first.Input))
	assert.Equal(t, ir.InputHash([]byte(`"d1"`)), first.InputHash)
	assert.Len(t, first.InputHash, 64)
	assert.Equal(t, t0, first.StartedAt)
	assert.Equal(t, t0.Add(time.Second), first.FinishedAt)
	require.Len(t, first.Invalidated, 2)
	assert.Equal(t, "doctors/approved", first.Invalidated[1].String())

	second := entries[1]
	assert.Equal(t, "r2", second.RunID)
	assert.Equal(t, mutation.Status("pending"), second.Status)
	assert.True(t, second.FinishedAt.IsZero())
	assert.Empty(t, second.Invalidated)

	seq, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestRecordOutcome_UnknownRunFails(t *testing.T) {
	j := createTestJournal(t)
	err := j.RecordOutcome(context.Background(), mutation.Outcome{RunID: "ghost", Status: mutation.StatusSuccess, FinishedAt: t0})
	assert.Error(t, err)
}

func TestRunsFor_FiltersByMutationAndRow(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()
	for i, rec := range []mutation.Record{
		{RunID: "a", Mutation: "deleteBanner", RowID: "b1"},
		{RunID: "b", Mutation: "deleteBanner", RowID: "b2"},
		{RunID: "c", Mutation: "deletePatient", RowID: "b1"},
	} {
		rec.Seq = int64(i + 1)
		rec.StartedAt = t0
		require.NoError(t, j.RecordRun(ctx, rec))
	}

	all, err := j.RunsFor(ctx, "deleteBanner", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := j.RunsFor(ctx, "deleteBanner", "b2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].RunID)

	e, ok, err := j.Run(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deletePatient", e.Mutation)

	_, ok, err = j.Run(ctx, "zzz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJournal_AsExecutorRecorder(t *testing.T) {
	j := createTestJournal(t)
	ex := mutation.NewExecutor(nil, mutation.WithRecorder(j), mutation.WithIDGenerator(mutation.NewSequentialGenerator("run")))

	m := mutation.Mutation[map[string]any, string]{
		Name: "createSpeciality",
		Effect: func(ctx context.Context, in map[string]any) (string, error) {
			return "s1", nil
		},
	}
	run := mutation.Execute(context.Background(), ex, m, map[string]any{"title": "Neurology"})
	require.Equal(t, mutation.StatusSuccess, run.Status())

	e, ok, err := j.Run(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"title":"Neurology"}`, string(e.Input))
	assert.Equal(t, mutation.StatusSuccess, e.Status)
}

func TestSessions_PutGetDelete(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	_, ok, err := j.GetSession(ctx, "default")
	require.NoError(t, err)
	assert.False(t, ok)

	row := SessionRow{Name: "default", Token: "tok-1", AdminID: "a1", Username: "root", Email: "root@example.com", ExpiresAt: t0}
	require.NoError(t, j.PutSession(ctx, row))
	row.Token = "tok-2"
	require.NoError(t, j.PutSession(ctx, row))

	got, ok, err := j.GetSession(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, row, got)

	require.NoError(t, j.DeleteSession(ctx, "default"))
	_, ok, err = j.GetSession(ctx, "default")
	require.NoError(t, err)
	assert.False(t, ok)
}
