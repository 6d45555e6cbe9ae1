package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/watcher"
)

func TestDropFolderFeedsIngestion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drop := t.TempDir()
	s := openStack(t, filepath.Join(t.TempDir(), "membank.db"))
	defer s.close(t)

	w, err := watcher.New(watcher.Options{DebounceWindow: 50 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx, drop))
	defer w.Stop()

	// Consumer mirrors what 'membank ingest --watch' does.
	go func() {
		for batch := range w.Events() {
			for _, ev := range batch {
				if ev.Operation != watcher.OpCreate && ev.Operation != watcher.OpModify {
					continue
				}
				_, _ = s.engine.IngestKnowledge(ctx, engine.IngestInput{
					OwnerID: 1,
					Path:    filepath.Join(drop, ev.Path),
				})
			}
		}
	}()

	// When: a note lands in the drop folder
	note := "# Standup Notes\n\nDeploy frozen until the index migration lands.\n"
	require.NoError(t, os.WriteFile(filepath.Join(drop, "standup.md"), []byte(note), 0o644))

	// Then: it shows up as a searchable memory
	require.Eventually(t, func() bool {
		hits, err := s.engine.SearchMemories(ctx, 1, "migration", 5)
		return err == nil && len(hits) == 1
	}, 5*time.Second, 50*time.Millisecond)

	hits, err := s.engine.SearchMemories(ctx, 1, "migration", 5)
	require.NoError(t, err)
	assert.Equal(t, "Standup Notes", hits[0].Title)

	// Non-documents dropped alongside never produce memories.
	require.NoError(t, os.WriteFile(filepath.Join(drop, "photo.jpg"), []byte{0xFF, 0xD8}, 0o644))
	time.Sleep(300 * time.Millisecond)

	stats, err := s.engine.Stats(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalMemories)
}
