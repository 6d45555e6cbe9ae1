package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/backup"
	"github.com/membank-io/membank/internal/store"
)

func newBackupCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "backup <directory>",
		Short: "Snapshot the primary store",
		Long: `Backup checkpoints the write-ahead log and copies the SQLite file
into the destination directory, next to a JSON manifest recording the
timestamp, source path, size, and membank version.

The vector index is not copied; 'membank reindex' rebuilds it from a
restored store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd, args[0], jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output backup paths as JSON")

	return cmd
}

func runBackup(cmd *cobra.Command, dest string, jsonOut bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("no database at %s", cfg.DatabaseURL)
	}

	logger, cleanup := newCLILogger(cfg)
	defer cleanup()

	release, err := acquireDataLock(cfg)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	res, err := backup.Run(ctx, st, dest, logger)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s (%d bytes)\nmanifest %s\n",
		res.BackupPath, res.Manifest.Bytes, res.ManifestPath)
	return err
}
