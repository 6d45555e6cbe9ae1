//go:build ignore

// Command generate-corpus writes a synthetic markdown knowledge base for
// ingest load testing.
// Usage: go run scripts/generate-corpus.go -docs 200 -output testdata/corpus
//
// Feed the result to the CLI:
//
//	membank ingest testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs   = flag.Int("docs", 200, "Number of documents to generate")
	chapters  = flag.Int("chapters", 4, "Chapters per document")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Topic pools. Each document sticks to one pool so semantic search over
// the corpus has clusters to find.
var topics = []struct {
	name  string
	nouns []string
	verbs []string
}{
	{
		name:  "operations",
		nouns: []string{"deploy", "rollback", "incident", "pager", "runbook", "canary", "quota", "outage", "retry budget", "error rate"},
		verbs: []string{"freezes", "drains", "escalates", "saturates", "recovers", "throttles"},
	},
	{
		name:  "storage",
		nouns: []string{"snapshot", "compaction", "write-ahead log", "checkpoint", "replica", "schema migration", "vacuum", "page cache", "index", "backup"},
		verbs: []string{"lags", "diverges", "compacts", "restores", "corrupts", "catches up"},
	},
	{
		name:  "research",
		nouns: []string{"embedding", "recall", "precision", "similarity threshold", "token window", "prompt", "evaluation set", "baseline", "ablation", "annotator"},
		verbs: []string{"improves", "regresses", "plateaus", "overfits", "generalizes", "converges"},
	},
	{
		name:  "meetings",
		nouns: []string{"standup", "retro", "decision", "action item", "deadline", "owner", "scope", "estimate", "blocker", "follow-up"},
		verbs: []string{"slips", "lands", "blocks", "ships", "stalls", "unblocks"},
	},
}

var chapterTitles = []string{
	"Summary", "Background", "What happened", "Decisions", "Open questions",
	"Next steps", "Measurements", "Timeline", "Risks", "References",
}

func main() {
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	var totalBytes int
	for i := 0; i < *numDocs; i++ {
		topic := topics[rng.Intn(len(topics))]
		doc := buildDocument(rng, topic.nouns, topic.verbs, *chapters)
		name := fmt.Sprintf("%s-%04d.md", topic.name, i)
		path := filepath.Join(*outputDir, name)
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		totalBytes += len(doc)
	}

	fmt.Printf("wrote %d documents (%d chapters each, %d KiB) to %s\n",
		*numDocs, *chapters, totalBytes/1024, *outputDir)
}

// buildDocument assembles one markdown file with heading-separated
// chapters, the shape the ingest chapter splitter expects.
func buildDocument(rng *rand.Rand, nouns, verbs []string, chapters int) string {
	var sb strings.Builder
	for c := 0; c < chapters; c++ {
		sb.WriteString("# ")
		sb.WriteString(chapterTitles[rng.Intn(len(chapterTitles))])
		sb.WriteString("\n\n")

		paragraphs := 1 + rng.Intn(3)
		for p := 0; p < paragraphs; p++ {
			sentences := 2 + rng.Intn(4)
			for s := 0; s < sentences; s++ {
				subject := nouns[rng.Intn(len(nouns))]
				verb := verbs[rng.Intn(len(verbs))]
				object := nouns[rng.Intn(len(nouns))]
				fmt.Fprintf(&sb, "The %s %s when the %s changes. ", subject, verb, object)
			}
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
