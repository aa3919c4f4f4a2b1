package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/qsync/internal/ir"
	"github.com/roach88/qsync/internal/mutation"
)

// Entry is a run joined with its outcome. Status is "pending" while no
// outcome has been written.
type Entry struct {
	RunID       string          `json:"run_id"`
	Mutation    string          `json:"mutation"`
	RowID       string          `json:"row_id,omitempty"`
	Input       json.RawMessage `json:"input"`
	InputHash   string          `json:"input_hash"`
	Seq         int64           `json:"seq"`
	StartedAt   time.Time       `json:"started_at"`
	Status      mutation.Status `json:"status"`
	ErrKind     string          `json:"err_kind,omitempty"`
	ErrMessage  string          `json:"err_message,omitempty"`
	Invalidated []ir.Key        `json:"invalidated"`
	FinishedAt  time.Time       `json:"finished_at,omitzero"`
}

// RecordRun appends a run. A duplicate run id is silently ignored.
func (j *Journal) RecordRun(ctx context.Context, rec mutation.Record) error {
	input := rec.Input
	if len(input) == 0 {
		input = []byte("null")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, mutation, row_id, input, seq, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.RunID,
		rec.Mutation,
		rec.RowID,
		string(input),
		rec.Seq,
		rec.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordOutcome writes the settled state of a run. Each run has at most one
// outcome; a second write for the same run is silently ignored.
//
// The run must already exist (foreign key constraint).
func (j *Journal) RecordOutcome(ctx context.Context, out mutation.Outcome) error {
	keys := out.Invalidated
	if keys == nil {
		keys = []ir.Key{}
	}
	inv, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, status, err_kind, err_message, invalidated, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		out.RunID,
		string(out.Status),
		out.ErrKind,
		out.ErrMessage,
		string(inv),
		out.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

const entryColumns = `
	r.id, r.mutation, r.row_id, r.input, r.seq, r.started_at,
	COALESCE(o.status, 'pending'), COALESCE(o.err_kind, ''), COALESCE(o.err_message, ''),
	COALESCE(o.invalidated, '[]'), o.finished_at
`

// Runs returns every run in seq order. Returns an empty slice, not nil,
// for an empty journal.
func (j *Journal) Runs(ctx context.Context) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`)
}

// RunsFor returns the runs of one mutation, optionally narrowed to a row.
// An empty row matches every row.
func (j *Journal) RunsFor(ctx context.Context, mutationName, row string) ([]Entry, error) {
	return j.queryEntries(ctx, `
		SELECT `+entryColumns+`
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		WHERE r.mutation = ? AND (? = '' OR r.row_id = ?)
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`, mutationName, row, row)
}

// Run returns one run by id. The bool is false when no such run exists.
func (j *Journal) Run(ctx context.Context, id string) (Entry, bool, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		WHERE r.id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (j *Journal) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e          Entry
		input      string
		status     string
		invalid    string
		startedMS  int64
		finishedMS sql.NullInt64
	)
	err := s.Scan(&e.RunID, &e.Mutation, &e.RowID, &input, &e.Seq, &startedMS,
		&status, &e.ErrKind, &e.ErrMessage, &invalid, &finishedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan run: %w", err)
	}

	e.Input = json.RawMessage(input)
	e.InputHash = ir.InputHash([]byte(input))
	e.Status = mutation.Status(status)
	e.StartedAt = time.UnixMilli(startedMS).UTC()
	if finishedMS.Valid {
		e.FinishedAt = time.UnixMilli(finishedMS.Int64).UTC()
	}
	if err := json.Unmarshal([]byte(invalid), &e.Invalidated); err != nil {
		return Entry{}, fmt.Errorf("unmarshal invalidated keys for %s: %w", e.RunID, err)
	}
	return e, nil
}
