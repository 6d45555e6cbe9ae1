package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/membank-io/membank/internal/config"
)

// acquireDataLock takes the data-directory lock so two membank
// processes never share the SQLite and HNSW files. The returned
// release function is safe to call once the command finishes.
func acquireDataLock(cfg *config.Config) (func(), error) {
	dir := filepath.Dir(cfg.DatabaseURL)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "membank.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another membank process is using %s", dir)
	}
	return func() { _ = lock.Unlock() }, nil
}
