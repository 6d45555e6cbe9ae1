package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/store"
	"github.com/membank-io/membank/pkg/version"
)

// statusInfo is the full status report for text and JSON rendering.
type statusInfo struct {
	Version      string            `json:"version"`
	DatabasePath string            `json:"databasePath"`
	Healthy      bool              `json:"healthy"`
	Components   engine.Health     `json:"components"`
	Vectors      int               `json:"vectors"`
	QueueDepth   int               `json:"queueDepth"`
	Owner        int64             `json:"owner"`
	Stats        *store.OwnerStats `json:"stats"`
}

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store health and statistics",
		Long: `Status reports component health (database, cache, vector index,
embedding provider) and the configured owner's memory statistics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOut bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup := newCLILogger(cfg)
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	stats, err := rt.engine.Stats(ctx, cfg.Auth.DefaultOwnerID)
	if err != nil {
		return err
	}

	health := rt.engine.Health(ctx)
	info := statusInfo{
		Version:      version.Version,
		DatabasePath: cfg.DatabaseURL,
		Healthy:      health.Healthy(),
		Components:   health,
		Vectors:      rt.index.Count(),
		QueueDepth:   rt.engine.QueueDepth(),
		Owner:        cfg.Auth.DefaultOwnerID,
		Stats:        stats,
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return renderStatus(cmd, info)
}

func renderStatus(cmd *cobra.Command, info statusInfo) error {
	out := cmd.OutOrStdout()

	state := "healthy"
	if !info.Healthy {
		state = "degraded"
	}
	fmt.Fprintf(out, "membank %s (%s)\n", info.Version, state)
	fmt.Fprintf(out, "database  %s\n", info.DatabasePath)
	fmt.Fprintf(out, "components  db=%s cache=%s vector=%s embedding=%s\n",
		upDown(info.Components.Database), upDown(info.Components.Cache),
		upDown(info.Components.Vector), upDown(info.Components.Embedding))
	fmt.Fprintf(out, "owner %d: %d memories, %d relations, %d contexts, %d bytes\n",
		info.Owner, info.Stats.TotalMemories, info.Stats.TotalRelations,
		info.Stats.TotalContexts, info.Stats.TotalBytes)
	fmt.Fprintf(out, "vectors %d, queue depth %d\n", info.Vectors, info.QueueDepth)

	if info.Stats.PendingEmbeddings > 0 {
		fmt.Fprintf(out, "pending embeddings %d\n", info.Stats.PendingEmbeddings)
	}
	if info.Stats.CorruptedMemories > 0 {
		fmt.Fprintf(out, "corrupted memories %d\n", info.Stats.CorruptedMemories)
	}
	if len(info.Stats.ByCategory) > 0 {
		fmt.Fprintln(out, "by category:")
		for category, n := range info.Stats.ByCategory {
			fmt.Fprintf(out, "  %-20s %d\n", category, n)
		}
	}
	return nil
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}
