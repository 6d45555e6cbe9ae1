package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/ingest"
)

// IngestKnowledge decodes a document, splits it into chapters, creates
// one memory per chapter, and chains them with follows relations in
// reading order. Oversized and empty chapters are skipped and counted;
// a chapter that fails to store is recorded in Errors and does not stop
// the run.
func (e *Engine) IngestKnowledge(ctx context.Context, in IngestInput) (rep *IngestReport, err error) {
	start := time.Now()
	defer e.finish("ingest_knowledge", start, &err)
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	data := in.Data
	if data == nil {
		if in.Path == "" {
			return nil, apperrors.InvalidInput("either a path or document data is required")
		}
		data, err = os.ReadFile(in.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, apperrors.InvalidInput("document %s does not exist", in.Path)
			}
			return nil, apperrors.StorageFailure("read document", err)
		}
	}
	if len(data) == 0 {
		return nil, apperrors.InvalidInput("document is empty")
	}

	if err := e.validateContext(ctx, in.OwnerID, in.ContextID); err != nil {
		return nil, err
	}

	text, encoding, err := ingest.DecodeText(data)
	if err != nil {
		return nil, apperrors.EncodingUnknown(err.Error())
	}

	baseTitle := in.Title
	if baseTitle == "" && in.Path != "" {
		baseTitle = strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
	}
	if baseTitle == "" {
		baseTitle = "Untitled document"
	}

	chapters := ingest.SplitChapters(text)
	rep = &IngestReport{Encoding: encoding}

	var prevID int64
	for i, ch := range chapters {
		body := strings.TrimSpace(ch.Body)
		if body == "" {
			rep.ChaptersSkipped++
			continue
		}
		if int64(len(body)) > e.limits.MaxChapterBytes {
			rep.ChaptersSkipped++
			e.log.Info("chapter skipped: oversized",
				"document", baseTitle, "chapter", i+1, "bytes", len(body))
			continue
		}

		title := ch.Title
		if title == "" {
			if len(chapters) == 1 {
				title = baseTitle
			} else {
				title = fmt.Sprintf("%s (part %d)", baseTitle, i+1)
			}
		}

		meta := map[string]string{"chapter": strconv.Itoa(i + 1)}
		if in.Path != "" {
			meta["source"] = in.Path
		}

		view, err := e.CreateMemory(ctx, CreateMemoryInput{
			OwnerID:   in.OwnerID,
			Title:     title,
			Content:   []byte(body),
			ContextID: in.ContextID,
			Category:  in.Category,
			Tags:      in.Tags,
			Metadata:  meta,
		})
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Sprintf("chapter %d: %v", i+1, err))
			continue
		}
		rep.MemoriesCreated++
		rep.MemoryIDs = append(rep.MemoryIDs, view.ID)

		if prevID != 0 {
			// The later chapter follows the earlier one.
			_, relErr := e.CreateRelation(ctx, in.OwnerID, RelationInput{
				SourceID: view.ID,
				TargetID: prevID,
				Type:     "follows",
				Strength: 1,
			})
			if relErr != nil {
				rep.Errors = append(rep.Errors, fmt.Sprintf("chapter %d relation: %v", i+1, relErr))
			} else {
				rep.RelationsCreated++
			}
		}
		prevID = view.ID
	}

	e.audit(ctx, in.OwnerID, "knowledge.ingest", "memory", 0,
		fmt.Sprintf("document=%s memories=%d", baseTitle, rep.MemoriesCreated))
	return rep, nil
}
