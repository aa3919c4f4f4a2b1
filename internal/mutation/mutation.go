package mutation

import (
	"context"

	"github.com/roach88/qsync/internal/ir"
)

// Effect performs the write.
type Effect[In, Out any] func(ctx context.Context, input In) (Out, error)

// Mutation describes a write and the cached reads it affects.
type Mutation[In, Out any] struct {
	// Name identifies the mutation in logs, the journal and the registry.
	Name string

	Effect Effect[In, Out]

	// Validate rejects malformed input before Effect runs. Optional.
	Validate func(input In) error

	// Invalidates lists the key patterns marked stale after a successful
	// effect, in declaration order.
	Invalidates []ir.Key

	// RowID extracts the row the input targets, for per-row status.
	// Optional; runs without one share the empty row id.
	RowID func(input In) string

	// Journal returns what the recorder stores as the run's input, for
	// inputs carrying secrets. Optional; the input itself is stored when nil.
	Journal func(input In) any
}

func (m Mutation[In, Out]) rowID(input In) string {
	if m.RowID == nil {
		return ""
	}
	return m.RowID(input)
}

func (m Mutation[In, Out]) journalInput(input In) any {
	if m.Journal == nil {
		return input
	}
	return m.Journal(input)
}
