package watcher

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
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWatcher(t *testing.T, root string) *Watcher {
	t.Helper()

	w, err := New(Options{DebounceWindow: 50 * time.Millisecond}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), root))
	t.Cleanup(w.Stop)
	return w
}

func nextBatch(t *testing.T, w *Watcher, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for event batch")
		return nil
	}
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
		want string
	}{
		{"create", OpCreate, "CREATE"},
		{"modify", OpModify, "MODIFY"},
		{"delete", OpDelete, "DELETE"},
		{"rename", OpRename, "RENAME"},
		{"unknown", Operation(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_Defaults(t *testing.T) {
	// Given: zero options
	o := Options{}.withDefaults()

	// Then: every field gets the documented default
	assert.Equal(t, 200*time.Millisecond, o.DebounceWindow)
	assert.Equal(t, 64, o.EventBufferSize)
	assert.Contains(t, o.Extensions, ".md")
	assert.Contains(t, o.Extensions, ".txt")
}

func TestWatcher_StartRejectsBadRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name string
		root string
	}{
		{"missing path", filepath.Join(dir, "nope")},
		{"regular file", file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(Options{}, discardLogger())
			require.NoError(t, err)
			defer w.Stop()

			require.Error(t, w.Start(context.Background(), tt.root))
		})
	}
}

func TestWatcher_ReportsNewDocument(t *testing.T) {
	// Given: a watched drop directory
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	// When: a markdown file lands in it
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meeting.md"), []byte("# Notes"), 0o644))

	// Then: one create event arrives with the relative path
	batch := nextBatch(t, w, 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "meeting.md", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
	assert.False(t, batch[0].Timestamp.IsZero())
}

func TestWatcher_ReportsModifiedDocument(t *testing.T) {
	// Given: a document that existed before watching began
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.txt")
	require.NoError(t, os.WriteFile(path, []byte("day one"), 0o644))
	w := newTestWatcher(t, dir)

	// When: it is rewritten
	require.NoError(t, os.WriteFile(path, []byte("day one\nday two"), 0o644))

	// Then: a modify event arrives
	batch := nextBatch(t, w, 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "journal.txt", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestWatcher_ReportsDeletedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.md")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	w := newTestWatcher(t, dir)

	require.NoError(t, os.Remove(path))

	batch := nextBatch(t, w, 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "old.md", batch[0].Path)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestWatcher_SkipsNonDocuments(t *testing.T) {
	// Given: a watched directory
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	// When: a binary and a hidden file land next to a real document
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0, 1, 2}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".draft.md"), []byte("wip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.md"), []byte("keep me"), 0o644))

	// Then: only the document is reported
	batch := nextBatch(t, w, 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "kept.md", batch[0].Path)
}

func TestWatcher_PicksUpNewSubdirectories(t *testing.T) {
	// Given: a watched directory
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	// When: a subdirectory appears and then receives a document
	sub := filepath.Join(dir, "inbox")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// The new watch must register before the file lands.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "child.md"), []byte("nested"), 0o644))

	// Then: the nested document is reported with its relative path
	batch := nextBatch(t, w, 3*time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, filepath.Join("inbox", "child.md"), batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestWatcher_RenameWithinTree(t *testing.T) {
	// Given: an existing document
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "before.md")
	require.NoError(t, os.WriteFile(oldPath, []byte("body"), 0o644))
	w := newTestWatcher(t, dir)

	// When: it is renamed in place
	require.NoError(t, os.Rename(oldPath, filepath.Join(dir, "after.md")))

	// Then: the old path reports a rename and the new path a create
	batch := nextBatch(t, w, 3*time.Second)
	byPath := make(map[string]Operation, len(batch))
	for _, ev := range batch {
		byPath[ev.Path] = ev.Operation
	}
	assert.Equal(t, OpRename, byPath["before.md"])
	assert.Equal(t, OpCreate, byPath["after.md"])
}

func TestWatcher_StopClosesChannels(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), dir))

	w.Stop()
	w.Stop()

	_, eventsOpen := <-w.Events()
	assert.False(t, eventsOpen)
	_, errsOpen := <-w.Errors()
	assert.False(t, errsOpen)
	assert.Zero(t, w.Dropped())
}
