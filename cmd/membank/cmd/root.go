// Package cmd provides the CLI commands for membank.
package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/config"
	"github.com/membank-io/membank/internal/logging"
	"github.com/membank-io/membank/internal/profiling"
	"github.com/membank-io/membank/pkg/version"
)

// Persistent flag values shared by every subcommand.
var (
	configPath   string
	profileCPU   string
	profileMem   string
	profileTrace string

	profiler  = profiling.NewProfiler()
	cpuStop   func()
	traceStop func()
)

// NewRootCmd creates the root command for the membank CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "membank",
		Short: "Persistent memory store for AI assistants",
		Long: `Membank stores memories, contexts, and relations for AI assistants
and serves them over MCP (stdio) and REST.

Run 'membank init' once to write a config file, then 'membank serve'
to expose the MCP tools or 'membank http' for the REST API.

Secrets never live in the config file: set MEMBANK_JWT_SECRET and
MEMBANK_EMBEDDING_API_KEY in the environment or a .env file.`,
		Version:            version.Version,
		SilenceUsage:       true,
		PersistentPreRunE:  beforeCommand,
		PersistentPostRunE: afterCommand,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("membank version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default ~/.membank/config.yaml)")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "",
		"Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "",
		"Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "",
		"Write an execution trace to this file")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHTTPCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// beforeCommand runs before every subcommand. It loads .env files and
// starts any profiling the flags ask for.
func beforeCommand(_ *cobra.Command, _ []string) error {
	loadDotEnv()

	var err error
	if profileCPU != "" {
		if cpuStop, err = profiler.StartCPU(profileCPU); err != nil {
			return err
		}
	}
	if profileTrace != "" {
		if traceStop, err = profiler.StartTrace(profileTrace); err != nil {
			return err
		}
	}
	return nil
}

// afterCommand stops active profiles and writes the heap snapshot if
// requested.
func afterCommand(_ *cobra.Command, _ []string) error {
	if cpuStop != nil {
		cpuStop()
		cpuStop = nil
	}
	if traceStop != nil {
		traceStop()
		traceStop = nil
	}
	if profileMem != "" {
		return profiler.WriteHeap(profileMem)
	}
	return nil
}

// loadDotEnv loads .env from the working directory and the data
// directory. Variables already set in the environment win, and missing
// files are fine.
func loadDotEnv() {
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(config.DefaultDataDir(), ".env"))
}

// loadConfig resolves the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// newCLILogger builds the logger for interactive commands. A terminal
// on stderr gets human-readable lines; pipes and services get JSON.
// A configured log file is honored in both cases.
func newCLILogger(cfg *config.Config) (*slog.Logger, func()) {
	if cfg.Logging.FilePath != "" {
		logger, cleanup, err := logging.Setup(logging.Config{
			Level:         cfg.Logging.Level,
			FilePath:      cfg.Logging.FilePath,
			MaxSizeMB:     cfg.Logging.MaxSizeMB,
			MaxFiles:      cfg.Logging.MaxFiles,
			WriteToStderr: true,
		})
		if err == nil {
			return logger, cleanup
		}
	}

	opts := &slog.HandlerOptions{Level: logging.ParseLevel(cfg.Logging.Level)}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler), func() {}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
