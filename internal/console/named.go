package console

import (
	"context"
	"sort"
	"time"

	"github.com/roach88/qsync/internal/fault"
	"github.com/roach88/qsync/internal/ir"
	"github.com/roach88/qsync/internal/mutation"
)

// Outcome is the settled state of a run started by name.
type Outcome struct {
	RunID       string          `json:"run_id"`
	Mutation    string          `json:"mutation"`
	RowID       string          `json:"row_id,omitempty"`
	Status      mutation.Status `json:"status"`
	Data        any             `json:"data,omitempty"`
	Err         *fault.Error    `json:"-"`
	Invalidated []ir.Key        `json:"invalidated,omitempty"`
	FinishedAt  time.Time       `json:"finished_at"`
}

func outcome[Out any](r *mutation.Run[Out]) Outcome {
	o := Outcome{
		RunID:       r.ID(),
		Mutation:    r.Name(),
		RowID:       r.RowID(),
		Status:      r.Status(),
		Err:         r.Err(),
		Invalidated: r.Invalidated(),
		FinishedAt:  r.FinishedAt(),
	}
	if o.Status == mutation.StatusSuccess {
		o.Data = r.Data()
	}
	return o
}

// byName lists the mutations that take a single string argument: a row id,
// or the title for create-speciality.
func (c *Console) byName() map[string]func(context.Context, string) Outcome {
	return map[string]func(context.Context, string) Outcome{
		ApproveDoctor:    func(ctx context.Context, s string) Outcome { return outcome(c.ApproveDoctor(ctx, s)) },
		DeleteDoctor:     func(ctx context.Context, s string) Outcome { return outcome(c.DeleteDoctor(ctx, s)) },
		DeletePatient:    func(ctx context.Context, s string) Outcome { return outcome(c.DeletePatient(ctx, s)) },
		CreateSpeciality: func(ctx context.Context, s string) Outcome { return outcome(c.CreateSpeciality(ctx, s)) },
		DeleteSpeciality: func(ctx context.Context, s string) Outcome { return outcome(c.DeleteSpeciality(ctx, s)) },
		DeleteBanner:     func(ctx context.Context, s string) Outcome { return outcome(c.DeleteBanner(ctx, s)) },
		MarkPayoutPaid:   func(ctx context.Context, s string) Outcome { return outcome(c.MarkPayoutPaid(ctx, s)) },
		DeleteAdmin:      func(ctx context.Context, s string) Outcome { return outcome(c.DeleteAdmin(ctx, s)) },
	}
}

// RunNames lists the mutations RunByName accepts, sorted.
func (c *Console) RunNames() []string {
	m := c.byName()
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunByName runs a single-argument mutation and returns its outcome. An
// unknown name is a validation error.
func (c *Console) RunByName(ctx context.Context, name, arg string) (Outcome, error) {
	fn, ok := c.byName()[name]
	if !ok {
		return Outcome{}, fault.Validation("unknown mutation %q", name)
	}
	return fn(ctx, arg), nil
}
