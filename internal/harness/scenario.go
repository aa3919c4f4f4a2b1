package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qsync/internal/ir"
)

// Scenario is one scripted session against the console.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step performs exactly one action.
type Step struct {
	Get         string `yaml:"get,omitempty"`
	Fetch       string `yaml:"fetch,omitempty"`
	Subscribe   string `yaml:"subscribe,omitempty"`
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	// Invalidate is a key pattern in slash form ("doctors").
	Invalidate string `yaml:"invalidate,omitempty"`

	// Mutate names a single-argument console mutation; Arg is its row id
	// (or title for create-speciality).
	Mutate string `yaml:"mutate,omitempty"`
	Arg    string `yaml:"arg,omitempty"`

	Parallel []Step `yaml:"parallel,omitempty"`

	FailNext *FailNext `yaml:"fail_next,omitempty"`

	// Advance moves the wall clock ("6m").
	Advance string `yaml:"advance,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// FailNext makes the backend answer the next request to Path with Status.
type FailNext struct {
	Path   string `yaml:"path"`
	Status int    `yaml:"status"`
}

// Expect checks the snapshot or run a step produced. Empty fields are not
// checked.
type Expect struct {
	Status     string   `yaml:"status,omitempty"`
	IDs        []string `yaml:"ids,omitempty"`
	ErrorKind  string   `yaml:"error_kind,omitempty"`
	HTTPStatus int      `yaml:"http_status,omitempty"`
}

// Assertion validates the trace, the final store state or the journal.
type Assertion struct {
	Type string `yaml:"type"`

	// Event, Key and Mutation select trace events (trace_contains,
	// trace_count). Key and Mutation are optional filters.
	Event    string `yaml:"event,omitempty"`
	Key      string `yaml:"key,omitempty"`
	Mutation string `yaml:"mutation,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Labels are "type:key" or "type:mutation" (trace_order).
	Labels []string `yaml:"labels,omitempty"`

	// Query and Expect are used by final_state.
	Query  string      `yaml:"query,omitempty"`
	Expect *StateCheck `yaml:"expect,omitempty"`
}

// StateCheck is the expected final state of a query. Nil fields are not
// checked.
type StateCheck struct {
	Status  string   `yaml:"status,omitempty"`
	IDs     []string `yaml:"ids,omitempty"`
	Fetches *int     `yaml:"fetches,omitempty"`
	Stale   *bool    `yaml:"stale,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertJournalCount  = "journal_count"
)

// Event types recorded in the trace.
var eventTypes = map[string]bool{
	EventGet: true, EventFetch: true, EventNotify: true, EventInvalidate: true, EventMutate: true,
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so that typos do not silently skip a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every .yaml and .yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	out := make([]*Scenario, 0, len(names))
	for _, n := range names {
		s, err := LoadScenario(filepath.Join(dir, n))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step, false); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func (st Step) kinds() []string {
	var k []string
	add := func(set bool, name string) {
		if set {
			k = append(k, name)
		}
	}
	add(st.Get != "", "get")
	add(st.Fetch != "", "fetch")
	add(st.Subscribe != "", "subscribe")
	add(st.Unsubscribe != "", "unsubscribe")
	add(st.Invalidate != "", "invalidate")
	add(st.Mutate != "", "mutate")
	add(len(st.Parallel) > 0, "parallel")
	add(st.FailNext != nil, "fail_next")
	add(st.Advance != "", "advance")
	return k
}

func validateStep(where string, st Step, nested bool) error {
	kinds := st.kinds()
	if len(kinds) != 1 {
		return fmt.Errorf("%s: exactly one action is required, got %v", where, kinds)
	}
	switch kinds[0] {
	case "parallel":
		if nested {
			return fmt.Errorf("%s: parallel steps cannot nest", where)
		}
		for i, sub := range st.Parallel {
			if sub.Mutate == "" {
				return fmt.Errorf("%s.parallel[%d]: only mutate steps may run in parallel", where, i)
			}
			if err := validateStep(fmt.Sprintf("%s.parallel[%d]", where, i), sub, true); err != nil {
				return err
			}
		}
	case "invalidate":
		if _, err := ir.ParseKey(st.Invalidate); err != nil {
			return fmt.Errorf("%s: invalidate: %w", where, err)
		}
	case "advance":
		if _, err := time.ParseDuration(st.Advance); err != nil {
			return fmt.Errorf("%s: advance: %w", where, err)
		}
	case "fail_next":
		if st.FailNext.Path == "" || st.FailNext.Status < 400 {
			return fmt.Errorf("%s: fail_next needs a path and a status >= 400", where)
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if !eventTypes[a.Event] {
			return fmt.Errorf("assertions[%d]: unknown event %q for trace_contains", i, a.Event)
		}
	case AssertTraceCount:
		if !eventTypes[a.Event] {
			return fmt.Errorf("assertions[%d]: unknown event %q for trace_count", i, a.Event)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", i)
		}
	case AssertTraceOrder:
		if len(a.Labels) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two labels", i)
		}
	case AssertFinalState:
		if a.Query == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: query and expect are required for final_state", i)
		}
	case AssertJournalCount:
		if a.Mutation == "" {
			return fmt.Errorf("assertions[%d]: mutation is required for journal_count", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
