package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/fault"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
}

// LoginResult is the output of the login command.
type LoginResult struct {
	AdminID   string    `json:"admin_id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Text renders the result for humans.
func (r LoginResult) Text() string {
	s := fmt.Sprintf("signed in as %s (%s), expires %s\n", r.Username, r.AdminID, r.ExpiresAt.Format(time.RFC3339))
	if r.Scope != "persistent" {
		s += fmt.Sprintf("session scope is not persistent; pass --token %s to later commands\n", r.Token)
	}
	return s
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as an admin",
		Long: `Sign in as an admin and store the session.

With token_scope: persistent the session is kept in the journal database
and used by later commands until it expires.

Example:
  qsync login --email root@console.test --password rootroot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()

			out := opts.formatter(cmd)
			s, err := e.console.SignIn(cmd.Context(), opts.Email, opts.Password)
			if err != nil {
				fe := fault.Classify(err)
				_ = out.Error(CodeSignIn, fe.Error(), nil)
				return WrapExitError(ExitFailure, "sign in failed", fe)
			}
			return out.Success(LoginResult{
				AdminID:   s.Admin.ID,
				Username:  s.Admin.Username,
				Token:     s.Token,
				Scope:     e.cfg.TokenScope,
				ExpiresAt: s.ExpiresAt,
			})
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Clear the stored session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.console.SignOut(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "sign out failed", err)
			}
			return rootOpts.formatter(cmd).Success("signed out")
		},
	}
}
