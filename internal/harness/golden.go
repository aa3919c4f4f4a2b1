package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qsync/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

func strings2any(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// toCanonicalMap converts the snapshot to the shapes ir.MarshalCanonical
// accepts. Empty fields are dropped, except ids, where an empty list is
// data.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"type": ev.Type,
		}
		if ev.Key != "" {
			m["key"] = ev.Key
		}
		if ev.Mutation != "" {
			m["mutation"] = ev.Mutation
		}
		if ev.Row != "" {
			m["row"] = ev.Row
		}
		if ev.Status != "" {
			m["status"] = ev.Status
		}
		if ev.IDs != nil {
			m["ids"] = strings2any(ev.IDs)
		}
		if ev.Fetches != 0 {
			m["fetches"] = ev.Fetches
		}
		if ev.Stale {
			m["stale"] = true
		}
		if len(ev.Marked) > 0 {
			m["marked"] = strings2any(ev.Marked)
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if ev.HTTPStatus != 0 {
			m["http_status"] = ev.HTTPStatus
		}
		trace[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// MarshalTrace renders the trace of result as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	traceJSON, err := MarshalTrace(name, result)
	if err != nil {
		t.Fatalf("marshal trace: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
}
