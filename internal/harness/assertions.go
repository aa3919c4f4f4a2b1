package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Label(), ev.Status)
		}
	}
	return buf.String()
}

// matches reports whether ev is of type typ and, when given, carries key
// and mutation.
func matches(ev TraceEvent, typ, key, mutation string) bool {
	if ev.Type != typ {
		return false
	}
	if key != "" && ev.Key != key {
		return false
	}
	if mutation != "" && ev.Mutation != mutation {
		return false
	}
	return true
}

func describe(a Assertion) string {
	s := "event " + a.Event
	if a.Key != "" {
		s += " key " + a.Key
	}
	if a.Mutation != "" {
		s += " mutation " + a.Mutation
	}
	return s
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Event, a.Key, a.Mutation) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Event, a.Key, a.Mutation) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the labels appear in order. Each label
// matches the first event carrying it after the previous label's match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, label := range a.Labels {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if ev.Label() == label {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("labels in order: %v", a.Labels),
				Actual:   fmt.Sprintf("%s missing or out of order", label),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertFinalState(r *Result, a Assertion) error {
	st, ok := r.State[a.Query]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s to have an entry", a.Query),
			Actual:   "no entry",
		}
	}
	want := a.Expect
	var diffs []string
	if want.Status != "" && want.Status != st.Status {
		diffs = append(diffs, fmt.Sprintf("status %s != %s", st.Status, want.Status))
	}
	if want.IDs != nil && !slices.Equal(want.IDs, st.IDs) {
		diffs = append(diffs, fmt.Sprintf("ids %v != %v", st.IDs, want.IDs))
	}
	if want.Fetches != nil && *want.Fetches != st.Fetches {
		diffs = append(diffs, fmt.Sprintf("fetches %d != %d", st.Fetches, *want.Fetches))
	}
	if want.Stale != nil && *want.Stale != st.Stale {
		diffs = append(diffs, fmt.Sprintf("stale %t != %t", st.Stale, *want.Stale))
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s to match", a.Query),
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

func assertJournalCount(r *Result, a Assertion) error {
	if got := r.JournalRuns[a.Mutation]; got != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journal runs of %s", a.Count, a.Mutation),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(r.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(r.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(r.Trace, a)
		case AssertFinalState:
			err = assertFinalState(r, a)
		case AssertJournalCount:
			err = assertJournalCount(r, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err))
		}
	}
	return errs
}
