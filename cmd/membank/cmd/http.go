package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/api"
	"github.com/membank-io/membank/internal/auth"
)

func newHTTPCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the REST API",
		Long: `Http runs the REST server with JWT authentication.

Requires MEMBANK_JWT_SECRET (at least 32 bytes) in the environment.
The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHTTP(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")

	return cmd
}

func runHTTP(ctx context.Context, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}

	logger, cleanup := newCLILogger(cfg)
	defer cleanup()

	release, err := acquireDataLock(cfg)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.engine.Start(ctx)

	authSvc, err := auth.NewService(rt.store.Users, cfg.Auth.JWTSecret, logger)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(rt.engine, authSvc, cfg, rt.registry, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
