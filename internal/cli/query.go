package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/api"
	"github.com/roach88/qsync/internal/cache"
	"github.com/roach88/qsync/internal/console"
	"github.com/roach88/qsync/internal/ir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Refresh bool
	Search  string
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Name       string    `json:"name"`
	KeyHash    string    `json:"key_hash"`
	Status     string    `json:"status"`
	Fetches    int       `json:"fetches"`
	FetchedAt  time.Time `json:"fetched_at,omitzero"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
}

// Text renders the result for humans.
func (r QueryResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (fetches: %d)\n", r.Name, r.Status, r.Fetches)
	if r.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", r.Error)
	}
	if r.Data != nil {
		data, err := json.MarshalIndent(r.Data, "", "  ")
		if err != nil {
			fmt.Fprintf(&b, "%v\n", r.Data)
		} else {
			b.Write(data)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <name>",
		Short: "Fetch a console query through the cache",
		Long: `Fetch a console query through the cache and print its settled state.

Query names are slash-separated keys; run "qsync list" for all of them.

Examples:
  qsync query doctors/pending
  qsync query doctors/all --search cardio
  qsync query dashboard --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()
			return runQuery(cmd, opts, e.console, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "bypass freshness and refetch")
	cmd.Flags().StringVar(&opts.Search, "search", "", "filter doctors or patients by a search term")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, c *console.Console, name string) error {
	q, ok := c.Lookup(name)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown query %q", name))
	}

	fetch := c.Fetch
	if opts.Refresh {
		fetch = c.Refresh
	}
	snap, err := fetch(cmd.Context(), name)
	if err != nil {
		return WrapExitError(ExitFailure, "query interrupted", err)
	}

	res, err := queryResult(q, snap, opts.Search)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash key", err)
	}

	out := opts.formatter(cmd)
	if snap.Status == cache.StatusError {
		_ = out.Error(CodeQueryFailed, res.Error, res)
		return NewExitError(ExitFailure, fmt.Sprintf("query %s failed", name))
	}
	return out.Success(res)
}

func queryResult(q console.Query, snap cache.Snapshot, search string) (QueryResult, error) {
	hash, err := ir.KeyHash(q.Key)
	if err != nil {
		return QueryResult{}, err
	}
	res := QueryResult{
		Name:      q.Name,
		KeyHash:   hash,
		Status:    string(snap.Status),
		Fetches:   snap.FetchCount,
		FetchedAt: snap.FetchedAt,
	}
	if snap.HasData {
		res.Data = filter(snap.Data, search)
	}
	if snap.Err != nil {
		res.Error = snap.Err.Error()
		res.HTTPStatus = snap.Err.Status
	}
	return res, nil
}

// filter applies the console's client-side search to doctor and patient
// lists. Other data is returned unchanged.
func filter(data any, term string) any {
	if term == "" {
		return data
	}
	switch v := data.(type) {
	case []api.Doctor:
		return console.FilterDoctors(v, term)
	case []api.Patient:
		return console.FilterPatients(v, term)
	}
	return data
}
