package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/logging"
	"github.com/membank-io/membank/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP interface over stdio",
		Long: `Serve exposes the memory tools to MCP clients over stdio.

Stdout carries the JSON-RPC stream exclusively; logs go to the rotating
file under the data directory. Tool calls act as the owner configured
by auth.defaultOwnerId.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// No stdout or stderr writes from here on: the MCP client owns both
	// ends of the pipe.
	cleanup, err := logging.SetupServeMode(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := slog.Default()

	release, err := acquireDataLock(cfg)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		return err
	}
	defer rt.Close()

	rt.engine.Start(ctx)

	srv, err := mcp.NewServer(rt.engine, cfg, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
