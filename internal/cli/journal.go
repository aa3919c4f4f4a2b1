package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/config"
	"github.com/roach88/qsync/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	DB       string
	Mutation string
	Row      string
}

// JournalResult lists journal entries.
type JournalResult struct {
	Entries []journal.Entry `json:"entries"`
}

// Text renders one line per run.
func (r JournalResult) Text() string {
	if len(r.Entries) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%6d  %-10s %-18s %-8s %s", e.Seq, e.Status, e.Mutation, e.RowID, e.RunID)
		if e.ErrMessage != "" {
			fmt.Fprintf(&b, "  error=%q", e.ErrMessage)
		}
		if len(e.Invalidated) > 0 {
			keys := make([]string, len(e.Invalidated))
			for i, k := range e.Invalidated {
				keys[i] = k.String()
			}
			fmt.Fprintf(&b, "  invalidated=%s", strings.Join(keys, ","))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recorded mutation runs",
		Long: `List the mutation runs recorded in the journal, in seq order.

The database defaults to journal_path from the config file.

Examples:
  qsync journal --db ./qsync.db
  qsync journal --db ./qsync.db --mutation approve-doctor --row d1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJournal(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "journal database path")
	cmd.Flags().StringVar(&opts.Mutation, "mutation", "", "only runs of this mutation")
	cmd.Flags().StringVar(&opts.Row, "row", "", "only runs for this row (needs --mutation)")

	return cmd
}

func listJournal(cmd *cobra.Command, opts *JournalOptions) error {
	path := opts.DB
	if path == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		path = cfg.JournalPath
	}
	if opts.Row != "" && opts.Mutation == "" {
		return NewExitError(ExitCommandError, "--row needs --mutation")
	}

	j, err := requireJournal(path, opts.RootOptions)
	if err != nil {
		return err
	}
	defer j.Close()

	var entries []journal.Entry
	if opts.Mutation != "" {
		entries, err = j.RunsFor(cmd.Context(), opts.Mutation, opts.Row)
	} else {
		entries, err = j.Runs(cmd.Context())
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	return opts.formatter(cmd).Success(JournalResult{Entries: entries})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
