package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/membank-io/membank/internal/errors"
)

func TestKeywordSearch(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv)

	createMemory(t, srv, token, gin.H{"title": "grocery list", "content": "milk eggs bread"})
	createMemory(t, srv, token, gin.H{"title": "deploy runbook", "content": "rollback steps for the api"})

	w := doJSON(t, srv, http.MethodGet, "/search?q=runbook", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results []memoryResponse `json:"results"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "deploy runbook", resp.Results[0].Title)
}

func TestKeywordSearch_Validation(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv)

	// Empty query
	w := doJSON(t, srv, http.MethodGet, "/search", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, w).Error.Code)

	// Unparseable limit
	w = doJSON(t, srv, http.MethodGet, "/search?q=x&limit=many", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSemanticSearch(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv)

	createMemory(t, srv, token, gin.H{
		"title":   "Feline behavior",
		"content": "cats purr when content and knead soft blankets",
	})
	createMemory(t, srv, token, gin.H{
		"title":   "Tax filing",
		"content": "quarterly estimated payments are due in april",
	})
	drainQueue(t, srv)

	// The query repeats the stored text, so the deterministic local
	// embedder scores it near 1.
	query := "Feline behavior\ncats purr when content and knead soft blankets"
	w := doJSON(t, srv, http.MethodPost, "/search/semantic", token, gin.H{
		"query":     query,
		"threshold": 0.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Hits   []semanticHitResponse `json:"hits"`
		Count  int                   `json:"count"`
		Cached bool                  `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, len(resp.Hits), resp.Count)
	assert.Equal(t, "Feline behavior", resp.Hits[0].Memory.Title)
	assert.Greater(t, resp.Hits[0].Similarity, 0.9)
	assert.False(t, resp.Cached)

	// The repeat is served from the cache
	w = doJSON(t, srv, http.MethodPost, "/search/semantic", token, gin.H{
		"query":     query,
		"threshold": 0.5,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
}

func TestSemanticSearch_Validation(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv)

	// Empty query
	w := doJSON(t, srv, http.MethodPost, "/search/semantic", token, gin.H{"query": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Threshold outside [0,1]
	w = doJSON(t, srv, http.MethodPost, "/search/semantic", token, gin.H{
		"query": "x", "threshold": 2.0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidInput, decodeError(t, w).Error.Code)
}
