package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/console"
	"github.com/roach88/qsync/internal/mutation"
)

// MutateResult is the output of the mutate command.
type MutateResult struct {
	RunID       string   `json:"run_id"`
	Mutation    string   `json:"mutation"`
	Row         string   `json:"row,omitempty"`
	Status      string   `json:"status"`
	Invalidated []string `json:"invalidated"`
	Error       string   `json:"error,omitempty"`
	HTTPStatus  int      `json:"http_status,omitempty"`
}

// Text renders the result for humans.
func (r MutateResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s (run %s)\n", r.Mutation, r.Row, r.Status, r.RunID)
	if len(r.Invalidated) > 0 {
		fmt.Fprintf(&b, "invalidated: %s\n", strings.Join(r.Invalidated, ", "))
	}
	return b.String()
}

// NewMutateCommand creates the mutate command.
func NewMutateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mutate <name> <arg>",
		Short: "Run a console mutation",
		Long: `Run a single-argument console mutation and print its outcome.

The argument is the row id, or the title for create-speciality. Run
"qsync list" for the available mutations.

Examples:
  qsync mutate approve-doctor d1
  qsync mutate create-speciality Neurology`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()
			return runMutation(cmd, rootOpts, e.console, args[0], args[1])
		},
	}
	return cmd
}

func runMutation(cmd *cobra.Command, opts *RootOptions, c *console.Console, name, arg string) error {
	out, err := c.RunByName(cmd.Context(), name, arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot run mutation", err)
	}

	res := mutateResult(out)
	f := opts.formatter(cmd)
	if out.Status != mutation.StatusSuccess {
		_ = f.Error(CodeMutationFailed, res.Error, res)
		return NewExitError(ExitFailure, fmt.Sprintf("%s failed", name))
	}
	return f.Success(res)
}

func mutateResult(out console.Outcome) MutateResult {
	res := MutateResult{
		RunID:       out.RunID,
		Mutation:    out.Mutation,
		Row:         out.RowID,
		Status:      string(out.Status),
		Invalidated: []string{},
	}
	for _, k := range out.Invalidated {
		res.Invalidated = append(res.Invalidated, k.String())
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
		res.HTTPStatus = out.Err.Status
	}
	return res
}
