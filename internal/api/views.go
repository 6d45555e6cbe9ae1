package api

import (
	"time"

	"github.com/membank-io/membank/internal/engine"
)

// memoryResponse is the JSON shape of a memory. It exists so the payload
// travels as a string; the engine view holds bytes, which encoding/json
// would base64-encode.
type memoryResponse struct {
	ID            int64             `json:"id"`
	ContextID     *int64            `json:"contextId,omitempty"`
	Title         string            `json:"title"`
	Content       string            `json:"content,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Category      string            `json:"category,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AccessLevel   string            `json:"accessLevel"`
	Importance    float64           `json:"importance"`
	StorageMode   string            `json:"storageMode"`
	OriginalBytes int64             `json:"originalBytes"`
	Corrupted     bool              `json:"corrupted,omitempty"`
	Embedded      bool              `json:"embedded"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func toMemoryResponse(m *engine.Memory) memoryResponse {
	return memoryResponse{
		ID:            m.ID,
		ContextID:     m.ContextID,
		Title:         m.Title,
		Content:       string(m.Content),
		Summary:       m.Summary,
		Category:      m.Category,
		Tags:          m.Tags,
		Metadata:      m.Metadata,
		AccessLevel:   m.AccessLevel,
		Importance:    m.Importance,
		StorageMode:   m.StorageMode,
		OriginalBytes: m.OriginalBytes,
		Corrupted:     m.Corrupted,
		Embedded:      m.Embedded,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toMemoryResponses(ms []*engine.Memory) []memoryResponse {
	out := make([]memoryResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMemoryResponse(m))
	}
	return out
}

// semanticHitResponse pairs a memory with its similarity to the query.
type semanticHitResponse struct {
	Memory     memoryResponse `json:"memory"`
	Similarity float64        `json:"similarity"`
}

func toSemanticHitResponses(hits []*engine.SemanticHit) []semanticHitResponse {
	out := make([]semanticHitResponse, 0, len(hits))
	for _, h := range hits {
		out = append(out, semanticHitResponse{
			Memory:     toMemoryResponse(h.Memory),
			Similarity: h.Similarity,
		})
	}
	return out
}
