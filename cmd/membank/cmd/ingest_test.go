package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoChapterDoc = `# Chapter One

Alpha body with enough words to stand on its own.

# Chapter Two

Beta body continuing the document.
`

type ingestReportLine struct {
	Path             string `json:"path"`
	Encoding         string `json:"encoding"`
	MemoriesCreated  int    `json:"memoriesCreated"`
	RelationsCreated int    `json:"relationsCreated"`
}

func TestIngestCmd_SingleDocument(t *testing.T) {
	testEnv(t)
	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte(twoChapterDoc), 0o644))

	// When: ingesting one markdown file
	out, err := runCLI(t, "ingest", doc, "--json")

	// Then: two chapters become two chained memories
	require.NoError(t, err)

	var rep ingestReportLine
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, doc, rep.Path)
	assert.Equal(t, "utf-8", rep.Encoding)
	assert.Equal(t, 2, rep.MemoriesCreated)
	assert.Equal(t, 1, rep.RelationsCreated)
}

func TestIngestCmd_Directory(t *testing.T) {
	testEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A\n\nalpha\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("plain text body\n"), 0o644))
	// Non-documents are skipped
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0, 1}, 0o644))

	out, err := runCLI(t, "ingest", dir, "--json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rep ingestReportLine
		require.NoError(t, json.Unmarshal([]byte(line), &rep))
		assert.NotZero(t, rep.MemoriesCreated)
	}
}

func TestIngestCmd_MissingPath(t *testing.T) {
	testEnv(t)

	_, err := runCLI(t, "ingest", filepath.Join(t.TempDir(), "nope.md"))
	require.Error(t, err)
}

func TestIngestCmd_WatchRequiresDirectory(t *testing.T) {
	testEnv(t)
	doc := filepath.Join(t.TempDir(), "one.md")
	require.NoError(t, os.WriteFile(doc, []byte("# A\n\nbody\n"), 0o644))

	_, err := runCLI(t, "ingest", doc, "--watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch requires a directory")
}

func TestStatusCmd_AfterIngest(t *testing.T) {
	testEnv(t)
	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte(twoChapterDoc), 0o644))

	_, err := runCLI(t, "ingest", doc)
	require.NoError(t, err)

	// When: asking for status
	out, err := runCLI(t, "status", "--json")
	require.NoError(t, err)

	// Then: the report shows a healthy stack and both memories
	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Healthy)
	assert.True(t, info.Components.Database)
	assert.True(t, info.Components.Vector)
	require.NotNil(t, info.Stats)
	assert.Equal(t, int64(2), info.Stats.TotalMemories)
	assert.Equal(t, int64(1), info.Stats.TotalRelations)
	assert.Equal(t, 2, info.Vectors)
}

func TestBackupCmd_WritesSnapshot(t *testing.T) {
	testEnv(t)
	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte(twoChapterDoc), 0o644))

	_, err := runCLI(t, "ingest", doc)
	require.NoError(t, err)

	dest := t.TempDir()
	out, err := runCLI(t, "backup", dest, "--json")
	require.NoError(t, err)

	var res struct {
		BackupPath   string `json:"backupPath"`
		ManifestPath string `json:"manifestPath"`
		Manifest     struct {
			Bytes int64 `json:"bytes"`
		} `json:"manifest"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	info, err := os.Stat(res.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest.Bytes, info.Size())

	_, err = os.Stat(res.ManifestPath)
	assert.NoError(t, err)
}

func TestBackupCmd_NoDatabase(t *testing.T) {
	testEnv(t)

	_, err := runCLI(t, "backup", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database")
}

func TestReindexCmd_RebuildsVectors(t *testing.T) {
	testEnv(t)
	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte(twoChapterDoc), 0o644))

	_, err := runCLI(t, "ingest", doc)
	require.NoError(t, err)

	out, err := runCLI(t, "reindex", "--json")
	require.NoError(t, err)

	var snap struct {
		Stage     string `json:"stage"`
		Total     int    `json:"total"`
		Processed int    `json:"processed"`
		Failed    int    `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, "ready", snap.Stage)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.Processed)
	assert.Zero(t, snap.Failed)
}
