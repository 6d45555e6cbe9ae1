package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.membank/logs).
// Falls back to the temp directory when home is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".membank", "logs")
	}
	return filepath.Join(home, ".membank", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "membank.log")
}
