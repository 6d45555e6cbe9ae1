// Package backup snapshots the primary store. A backup is an
// uncompressed copy of the SQLite file taken after a WAL checkpoint,
// paired with a JSON manifest describing where and when it was taken.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/logging"
	"github.com/membank-io/membank/internal/store"
	"github.com/membank-io/membank/pkg/version"
)

// Manifest is the sidecar written next to every backup file.
type Manifest struct {
	Timestamp  time.Time `json:"timestamp"`
	SourcePath string    `json:"source_path"`
	Bytes      int64     `json:"bytes"`
	Version    string    `json:"version"`
}

// Result reports where a backup landed.
type Result struct {
	BackupPath   string   `json:"backupPath"`
	ManifestPath string   `json:"manifestPath"`
	Manifest     Manifest `json:"manifest"`
}

// Run checkpoints the WAL and copies the database into destDir. The copy
// is written to a temp file and renamed so a crashed run never leaves a
// half-written backup under a final name.
func Run(ctx context.Context, st *store.Store, destDir string, logger *slog.Logger) (*Result, error) {
	log := logging.Component(logger, "backup")

	src := st.Path()
	if src == "" {
		return nil, apperrors.InvalidInput("an in-memory database cannot be backed up")
	}
	if destDir == "" {
		return nil, apperrors.InvalidInput("backup destination directory is required")
	}

	// Fold the WAL into the main file so the copy is self-contained.
	if err := st.Checkpoint(ctx); err != nil {
		return nil, apperrors.StorageFailure("checkpoint before backup", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, apperrors.StorageFailure("create backup directory", err)
	}

	now := time.Now().UTC()
	dest, err := nextName(destDir, now)
	if err != nil {
		return nil, err
	}

	written, err := copyFile(src, dest)
	if err != nil {
		return nil, apperrors.StorageFailure("copy database", err)
	}

	man := Manifest{
		Timestamp:  now,
		SourcePath: src,
		Bytes:      written,
		Version:    version.Version,
	}
	manifestPath := dest + ".json"
	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, apperrors.StorageFailure("encode manifest", err)
	}
	if err := os.WriteFile(manifestPath, append(raw, '\n'), 0o644); err != nil {
		os.Remove(dest)
		return nil, apperrors.StorageFailure("write manifest", err)
	}

	log.Info("backup complete",
		slog.String("path", dest),
		slog.Int64("bytes", written))
	return &Result{BackupPath: dest, ManifestPath: manifestPath, Manifest: man}, nil
}

// nextName picks an unused timestamped file name. Runs within the same
// second get a numeric suffix instead of clobbering each other.
func nextName(dir string, ts time.Time) (string, error) {
	base := "membank-" + ts.Format("20060102-150405")
	for i := 0; i < 1000; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(dir, name+".db")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", apperrors.StorageFailure("probe backup name", err)
		}
	}
	return "", apperrors.StorageFailure("no free backup name", nil)
}

// copyFile copies src to dest via a temp file and rename, returning the
// byte count.
func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return written, nil
}

// ReadManifest loads a backup's sidecar.
func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.StorageFailure("read manifest", err)
	}
	var man Manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return nil, apperrors.StorageFailure("decode manifest", err)
	}
	return &man, nil
}
