package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qsync/internal/backend"
)

// MockAPIOptions holds flags for the mock-api command.
type MockAPIOptions struct {
	*RootOptions
	Addr string
}

// NewMockAPICommand creates the mock-api command.
func NewMockAPICommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MockAPIOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Serve the in-memory admin API",
		Long: `Serve the in-memory admin API for local runs.

The API starts with a fixed set of doctors, patients, specialities, banners
and admins. Sign in as root@console.test / rootroot, or pass
--token dev-token to other commands.

Example:
  qsync mock-api --addr 127.0.0.1:8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", opts.Addr)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to listen", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mock API listening on http://%s\n", ln.Addr())
			return serveMock(ctx, ln, backend.New(backend.WithLogger(opts.logger())))
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")

	return cmd
}

// serveMock serves h on ln until ctx ends, then shuts down gracefully.
func serveMock(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
