package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/async"
)

func newReindexCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from scratch",
		Long: `Reindex clears the vector index and re-embeds every active memory.

Use it after changing the embedding provider or dimension, or to
recover from a lost index file. Per-memory failures are skipped and
counted; they do not abort the rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReindex(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the final summary as JSON")

	return cmd
}

func runReindex(cmd *cobra.Command, jsonOut bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	progress := async.NewProgress()
	done := make(chan struct{})
	if isTerminal(os.Stderr) && !jsonOut {
		go renderProgress(progress, done)
	}

	n, err := rt.engine.Reindex(ctx, progress)
	close(done)
	if err != nil {
		return err
	}

	snap := progress.Snapshot()
	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(snap)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d memories (%d failed) in %s\n",
		n, snap.Failed, snap.Elapsed.Round(time.Millisecond))
	return err
}

// renderProgress repaints one status line on stderr until done closes.
func renderProgress(p *async.Progress, done <-chan struct{}) {
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-done:
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		case <-tick.C:
			s := p.Snapshot()
			fmt.Fprintf(os.Stderr, "\r%-10s %d/%d", s.Stage, s.Processed, s.Total)
		}
	}
}
