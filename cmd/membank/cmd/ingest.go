package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/membank-io/membank/internal/engine"
	"github.com/membank-io/membank/internal/watcher"
)

type ingestOptions struct {
	watch     bool
	contextID int64
	category  string
	tags      []string
	title     string
	jsonOut   bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest documents into memories",
		Long: `Ingest decodes a document, splits it into chapters, stores one
memory per chapter, and chains the chapters with follows relations in
reading order.

A file is ingested once. A directory ingests every document in it,
and with --watch the command keeps running and ingests documents as
they land in the directory.`,
		Example: `  # Ingest a single document
  membank ingest notes/meeting.md

  # Ingest a directory into context 3
  membank ingest notes/ --context 3 --tags imported

  # Keep watching a drop directory
  membank ingest inbox/ --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch the directory and ingest new documents")
	cmd.Flags().Int64Var(&opts.contextID, "context", 0, "Context id to file memories under")
	cmd.Flags().StringVar(&opts.category, "category", "", "Category for created memories")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Tags for created memories")
	cmd.Flags().StringVar(&opts.title, "title", "", "Base title (default: file name)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output reports as JSON")

	return cmd
}

func runIngest(cmd *cobra.Command, path string, opts ingestOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if opts.watch && !info.IsDir() {
		return fmt.Errorf("--watch requires a directory, %s is a file", path)
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

	rt.engine.Start(ctx)
	owner := cfg.Auth.DefaultOwnerID

	if !info.IsDir() {
		rep, err := rt.engine.IngestKnowledge(ctx, ingestInput(owner, path, opts))
		if err != nil {
			return err
		}
		return printIngestReport(cmd, path, rep, opts.jsonOut)
	}

	if err := ingestTree(ctx, cmd, rt, path, owner, opts); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watchAndIngest(ctx, rt, path, owner, opts)
}

func ingestInput(owner int64, path string, opts ingestOptions) engine.IngestInput {
	in := engine.IngestInput{
		OwnerID:  owner,
		Path:     path,
		Title:    opts.title,
		Category: opts.category,
		Tags:     opts.tags,
	}
	if opts.contextID > 0 {
		ctxID := opts.contextID
		in.ContextID = &ctxID
	}
	return in
}

// ingestTree ingests every document already present under root.
// Individual failures are reported and do not stop the walk.
func ingestTree(ctx context.Context, cmd *cobra.Command, rt *runtime, root string, owner int64, opts ingestOptions) error {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isDocument(name) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	// The per-file title flag only makes sense for a single document.
	treeOpts := opts
	treeOpts.title = ""

	var failed int
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rep, err := rt.engine.IngestKnowledge(ctx, ingestInput(owner, path, treeOpts))
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "ingest %s: %v\n", path, err)
			continue
		}
		if err := printIngestReport(cmd, path, rep, opts.jsonOut); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(files))
	}
	return nil
}

// watchAndIngest ingests documents as they settle in the drop
// directory. Runs until the context is canceled.
func watchAndIngest(ctx context.Context, rt *runtime, root string, owner int64, opts ingestOptions) error {
	w, err := watcher.New(watcher.Options{}, rt.log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx, root); err != nil {
		return err
	}
	defer w.Stop()

	watchOpts := opts
	watchOpts.title = ""

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				if ev.Operation != watcher.OpCreate && ev.Operation != watcher.OpModify {
					continue
				}
				full := filepath.Join(root, ev.Path)
				rep, err := rt.engine.IngestKnowledge(ctx, ingestInput(owner, full, watchOpts))
				if err != nil {
					rt.log.Error("ingest failed", "path", ev.Path, "error", err)
					continue
				}
				rt.log.Info("document ingested",
					"path", ev.Path,
					"memories", rep.MemoriesCreated,
					"relations", rep.RelationsCreated)
			}
		case err, ok := <-w.Errors():
			if ok && err != nil {
				rt.log.Warn("watch error", "error", err)
			}
		}
	}
}

// isDocument mirrors the watcher's default extension set so one-shot
// and watch mode ingest the same files.
func isDocument(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range watcher.DefaultOptions().Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func printIngestReport(cmd *cobra.Command, path string, rep *engine.IngestReport, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		return enc.Encode(struct {
			Path string `json:"path"`
			*engine.IngestReport
		}{Path: path, IngestReport: rep})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(),
		"%s: %d memories, %d relations (%s)\n",
		path, rep.MemoriesCreated, rep.RelationsCreated, rep.Encoding)
	return err
}
