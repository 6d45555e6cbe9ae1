package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/configs"
	"github.com/membank-io/membank/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Init creates the data directory and writes a commented configuration
template. Every key in the template is optional; uncommented values
override the built-in defaults.

Secrets are never written to the file. Set MEMBANK_JWT_SECRET and
MEMBANK_EMBEDDING_API_KEY in the environment or a .env file.`,
		Example: `  # Write ~/.membank/config.yaml
  membank init

  # Write somewhere else
  membank init --config ./membank.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.MkdirAll(config.DefaultDataDir(), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
