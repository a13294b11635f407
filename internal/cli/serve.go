package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/devserver"
)

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory reference incident service",
		Long: `Run an in-memory implementation of the incident and checklist API for
demos and local testing. State is lost on exit.

Example:
  readykit serve --addr :8001
  readykit --api-url http://localhost:8001 queue flush`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, addr, cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8001", "listen address")
	return cmd
}

func runServe(opts *RootOptions, addr string, cmd *cobra.Command) error {
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", ln.Addr())

	srv := devserver.New(devserver.WithLogger(opts.Logger.Named("devserver")), devserver.WithClock(opts.clock()))
	if err := srv.Serve(ctx, ln); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	opts.Logger.Info("Server stopped", zap.Int("incidents", len(srv.Incidents())))
	return nil
}
