package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// VectorStoreConfig tunes the HNSW graph. Euclidean distance over
// L2-normalized vectors keeps similarity = 1/(1+distance) in (0,1].
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (384 for the local hash embedder)
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int

	// Ml is the level generation factor (default: 0.25)
	Ml float64
}

// DefaultVectorStoreConfig returns sensible defaults for the index.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
		Ml:         0.25,
	}
}

// VectorIndex is the engine's view of the ANN index. Implementations must
// be safe for concurrent use.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for a memory id.
	Upsert(ctx context.Context, id int64, vec []float32, meta VectorMeta) error

	// Delete removes ids. Missing ids are ignored.
	Delete(ctx context.Context, ids ...int64) error

	// Query finds up to k nearest neighbors matching the filter.
	Query(ctx context.Context, vec []float32, k int, filter VectorFilter) ([]*VectorResult, error)

	// Contains checks if an id is live in the index.
	Contains(id int64) bool

	// Count returns the number of live vectors.
	Count() int

	// AllIDs returns all live ids (for parity checks).
	AllIDs() []int64

	// Clear drops every vector.
	Clear() error

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// HNSWIndex implements VectorIndex on coder/hnsw (pure Go, no CGO).
//
// Memory ids map to internal graph keys. Updates and deletes orphan the
// old graph node instead of removing it: coder/hnsw breaks when the last
// node is deleted, so nodes are never removed, only unmapped. Orphans are
// skipped at query time and reclaimed by Compact.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[int64]uint64  // memory id -> graph key
	keyMap  map[uint64]int64  // graph key -> memory id
	nextKey uint64            // next available graph key
	meta    map[int64]VectorMeta
	vectors map[int64][]float32 // normalized vectors, kept for Compact

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMetadata is the gob sidecar persisted next to the graph export.
type hnswMetadata struct {
	IDMap   map[int64]uint64
	Meta    map[int64]VectorMeta
	Vectors map[int64][]float32
	NextKey uint64
	Config  VectorStoreConfig
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = cfg.Ml
	return g
}

// NewHNSWIndex creates an empty index.
func NewHNSWIndex(cfg VectorStoreConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	if cfg.Ml == 0 {
		cfg.Ml = 0.25
	}

	return &HNSWIndex{
		graph:   newGraph(cfg),
		config:  cfg,
		idMap:   make(map[int64]uint64),
		keyMap:  make(map[uint64]int64),
		meta:    make(map[int64]VectorMeta),
		vectors: make(map[int64][]float32),
	}, nil
}

// Dimensions returns the index dimensionality.
func (x *HNSWIndex) Dimensions() int {
	return x.config.Dimensions
}

// Upsert inserts or replaces the vector for a memory id.
func (x *HNSWIndex) Upsert(ctx context.Context, id int64, vec []float32, meta VectorMeta) error {
	if len(vec) != x.config.Dimensions {
		return ErrDimensionMismatch{Expected: x.config.Dimensions, Got: len(vec)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}

	// Replacing an id orphans the old graph node rather than deleting it.
	if oldKey, exists := x.idMap[id]; exists {
		delete(x.keyMap, oldKey)
		delete(x.idMap, id)
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	key := x.nextKey
	x.nextKey++

	node := hnsw.MakeNode(key, normalized)
	x.graph.Add(node)

	x.idMap[id] = key
	x.keyMap[key] = id
	if meta.IndexedAt.IsZero() {
		meta.IndexedAt = time.Now().UTC()
	}
	x.meta[id] = meta
	x.vectors[id] = normalized

	return nil
}

// Delete unmaps ids. Graph nodes stay behind as orphans until Compact.
func (x *HNSWIndex) Delete(ctx context.Context, ids ...int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}

	for _, id := range ids {
		if key, exists := x.idMap[id]; exists {
			delete(x.keyMap, key)
			delete(x.idMap, id)
			delete(x.meta, id)
			delete(x.vectors, id)
		}
	}
	return nil
}

// Query finds up to k nearest neighbors whose metadata matches the filter.
// Callers over-fetch k to compensate for filtered and orphaned hits.
func (x *HNSWIndex) Query(ctx context.Context, vec []float32, k int, filter VectorFilter) ([]*VectorResult, error) {
	if len(vec) != x.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: x.config.Dimensions, Got: len(vec)}
	}
	if k <= 0 {
		return []*VectorResult{}, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, ErrClosed
	}
	if x.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	nodes := x.graph.Search(normalized, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, live := x.keyMap[node.Key]
		if !live {
			continue // orphaned by update or delete
		}
		m := x.meta[id]
		if filter.OwnerID != 0 && m.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ContextID != 0 && m.ContextID != filter.ContextID {
			continue
		}

		distance := x.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    scoreFromDistance(distance),
		})
	}
	return results, nil
}

// Meta returns the stored metadata for an id.
func (x *HNSWIndex) Meta(id int64) (VectorMeta, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.meta[id]
	return m, ok
}

// Contains checks if an id is live.
func (x *HNSWIndex) Contains(id int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return false
	}
	_, exists := x.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (x *HNSWIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return 0
	}
	return len(x.idMap)
}

// AllIDs returns all live ids, used by the parity reconciler.
func (x *HNSWIndex) AllIDs() []int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil
	}
	ids := make([]int64, 0, len(x.idMap))
	for id := range x.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops everything and starts a fresh graph.
func (x *HNSWIndex) Clear() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}

	x.graph = newGraph(x.config)
	x.idMap = make(map[int64]uint64)
	x.keyMap = make(map[uint64]int64)
	x.meta = make(map[int64]VectorMeta)
	x.vectors = make(map[int64][]float32)
	x.nextKey = 0
	return nil
}

// IndexStats describes graph occupancy, including orphans left behind by
// lazy deletion. Compaction triggers on the orphan ratio.
type IndexStats struct {
	ValidIDs   int // live id mappings
	GraphNodes int // total graph nodes, orphans included
	Orphans    int // GraphNodes - ValidIDs
}

// Stats returns occupancy counters for compaction decisions.
func (x *HNSWIndex) Stats() IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return IndexStats{}
	}
	valid := len(x.idMap)
	nodes := x.graph.Len()
	return IndexStats{ValidIDs: valid, GraphNodes: nodes, Orphans: nodes - valid}
}

// Compact rebuilds the graph from the live vectors, dropping orphans.
// Returns the number of orphans reclaimed.
func (x *HNSWIndex) Compact() (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return 0, ErrClosed
	}

	orphans := x.graph.Len() - len(x.idMap)
	if orphans <= 0 {
		return 0, nil
	}

	graph := newGraph(x.config)
	idMap := make(map[int64]uint64, len(x.vectors))
	keyMap := make(map[uint64]int64, len(x.vectors))
	var nextKey uint64

	for id, vec := range x.vectors {
		key := nextKey
		nextKey++
		graph.Add(hnsw.MakeNode(key, vec))
		idMap[id] = key
		keyMap[key] = id
	}

	x.graph = graph
	x.idMap = idMap
	x.keyMap = keyMap
	x.nextKey = nextKey

	slog.Debug("vector_index_compacted",
		slog.Int("live", len(idMap)),
		slog.Int("reclaimed", orphans))
	return orphans, nil
}

// Save persists the index to disk atomically (temp file + rename). The
// graph export goes to path, the id/meta sidecar to path+".meta".
func (x *HNSWIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return ErrClosed
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := x.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := x.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (x *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   x.idMap,
		Meta:    x.meta,
		Vectors: x.vectors,
		NextKey: x.nextKey,
		Config:  x.config,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the index from disk. The metadata sidecar is read first
// so the graph parameters match the export.
func (x *HNSWIndex) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return ErrClosed
	}

	if err := x.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader
	reader := bufio.NewReader(file)
	if err := x.graph.Import(reader); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}
	return nil
}

func (x *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return fmt.Errorf("decode index metadata: %w", err)
	}

	x.idMap = meta.IDMap
	x.meta = meta.Meta
	x.vectors = meta.Vectors
	x.nextKey = meta.NextKey
	x.config = meta.Config
	if x.meta == nil {
		x.meta = make(map[int64]VectorMeta)
	}
	if x.vectors == nil {
		x.vectors = make(map[int64][]float32)
	}

	x.keyMap = make(map[uint64]int64, len(x.idMap))
	for id, key := range x.idMap {
		x.keyMap[key] = id
	}
	x.graph = newGraph(x.config)
	return nil
}

// Close releases resources.
func (x *HNSWIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return nil
}

// ReadIndexDimensions reads the dimensionality of a persisted index.
// Returns 0 when no metadata exists (fresh start). The path is the index
// path (e.g. "memories-384.hnsw"), not the sidecar path.
func ReadIndexDimensions(indexPath string) (int, error) {
	file, err := os.Open(indexPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open index metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close index metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode index metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// normalizeVectorInPlace scales a vector to unit length. Zero vectors are
// left untouched.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// scoreFromDistance converts Euclidean distance to similarity in (0,1].
func scoreFromDistance(distance float32) float32 {
	return 1.0 / (1.0 + distance)
}
