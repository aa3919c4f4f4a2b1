package harness

// Event types.
const (
	EventGet        = "get"
	EventFetch      = "fetch"
	EventNotify     = "notify"
	EventInvalidate = "invalidate"
	EventMutate     = "mutate"
)

// TraceEvent is one observable thing the store or executor did.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Key is the query name for get, fetch and notify, or the pattern for
	// invalidate.
	Key string `json:"key,omitempty"`

	Mutation string `json:"mutation,omitempty"`
	Row      string `json:"row,omitempty"`

	Status string `json:"status,omitempty"`

	// IDs are the record ids of list data, in order. Nil when the entry has
	// no data or the data is not a list of records.
	IDs []string `json:"ids,omitempty"`

	Fetches int  `json:"fetches,omitempty"`
	Stale   bool `json:"stale,omitempty"`

	// Marked are the keys an invalidation or mutation marked stale.
	Marked []string `json:"marked,omitempty"`

	Error      string `json:"error,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// Label is "type:key" or "type:mutation".
func (e TraceEvent) Label() string {
	if e.Mutation != "" {
		return e.Type + ":" + e.Mutation
	}
	return e.Type + ":" + e.Key
}

// QueryState is the final state of one query.
type QueryState struct {
	Status  string   `json:"status"`
	IDs     []string `json:"ids,omitempty"`
	Fetches int      `json:"fetches"`
	Stale   bool     `json:"stale"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// State holds every query that has an entry, by name.
	State map[string]QueryState `json:"state,omitempty"`

	// JournalRuns counts journal entries by mutation name.
	JournalRuns map[string]int `json:"journal_runs,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		State:       make(map[string]QueryState),
		JournalRuns: make(map[string]int),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
