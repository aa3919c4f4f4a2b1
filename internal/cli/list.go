package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/console"
	"github.com/roach88/qsync/internal/ir"
)

// ListResult names every query and runnable mutation.
type ListResult struct {
	Queries   []string `json:"queries"`
	Mutations []string `json:"mutations"`
}

// Text renders the result for humans.
func (r ListResult) Text() string {
	var b strings.Builder
	b.WriteString("queries:\n")
	for _, q := range r.Queries {
		fmt.Fprintf(&b, "  %s\n", q)
	}
	b.WriteString("mutations:\n")
	for _, m := range r.Mutations {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	return b.String()
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List console queries and mutations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()
			return rootOpts.formatter(cmd).Success(listResult(e.console))
		},
	}
}

func listResult(c *console.Console) ListResult {
	res := ListResult{Mutations: c.RunNames()}
	for _, q := range c.Queries() {
		res.Queries = append(res.Queries, q.Name)
	}
	return res
}

// VersionResult is the output of the version command.
type VersionResult struct {
	Version    string `json:"version"`
	KeyVersion string `json:"key_version"`
}

// Text renders the result for humans.
func (r VersionResult) Text() string {
	return fmt.Sprintf("qsync %s (key encoding v%s)\n", r.Version, r.KeyVersion)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the qsync version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(VersionResult{
				Version:    ir.EngineVersion,
				KeyVersion: ir.KeyVersion,
			})
		},
	}
}
