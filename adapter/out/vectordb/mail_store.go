// Package vectordb persists embeddings in dimension-keyed directories.
//
// Layout: <base>/db_<dimension>/meta.json plus segment files of chunk
// records. Switching embedding models writes a new directory; old
// dimensions stay on disk untouched.
package vectordb

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

const segmentSize = 256 // chunks per segment file

// Store implements out.VectorStorePort over local JSON segments.
type Store struct {
	base string
	mu   sync.RWMutex
	log  zerolog.Logger
}

type meta struct {
	Dimension int    `json:"dimension"`
	Chunks    int    `json:"chunks"`
	Segments  int    `json:"segments"`
	BuiltAt   string `json:"built_at"`
}

// NewStore creates a store rooted at base (usually the working directory).
func NewStore(base string, log zerolog.Logger) *Store {
	return &Store{
		base: base,
		log:  log.With().Str("component", "vector_store").Logger(),
	}
}

func (s *Store) dir(dimension int) string {
	return filepath.Join(s.base, fmt.Sprintf("db_%d", dimension))
}

// Exists reports whether a store directory for this dimension is on disk.
func (s *Store) Exists(dimension int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(filepath.Join(s.dir(dimension), "meta.json"))
	return err == nil
}

// Count reports how many chunks the store of this dimension holds.
func (s *Store) Count(dimension int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.readMeta(dimension)
	if err != nil {
		return 0, err
	}
	return m.Chunks, nil
}

// Replace rebuilds the store for the given dimension from scratch:
// delete, recreate, write segments, then meta last so a crashed rebuild
// leaves no store claiming to be complete.
func (s *Store) Replace(ctx context.Context, dimension int, chunks []out.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(dimension)
	if err := os.RemoveAll(dir); err != nil {
		return apperr.PersistenceError("clear vector store", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.PersistenceError("create vector store", err)
	}
	return s.writeAll(dimension, chunks)
}

// Add appends chunks to an existing store of the given dimension.
func (s *Store) Add(ctx context.Context, dimension int, chunks []out.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadChunks(dimension)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(s.dir(dimension), 0o755); mkErr != nil {
				return apperr.PersistenceError("create vector store", mkErr)
			}
			existing = nil
		} else {
			return apperr.PersistenceError("load vector store", err)
		}
	}

	// chunks re-indexed from the same source replace their old records
	replaced := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		replaced[c.Source] = struct{}{}
	}
	merged := make([]out.Chunk, 0, len(existing)+len(chunks))
	for _, c := range existing {
		if _, ok := replaced[c.Source]; !ok {
			merged = append(merged, c)
		}
	}
	merged = append(merged, chunks...)

	return s.writeAll(dimension, merged)
}

// Search returns the k chunks most similar to the query vector by cosine
// similarity.
func (s *Store) Search(ctx context.Context, dimension int, query []float32, k int) ([]out.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != dimension {
		return nil, apperr.InvalidInput("query", fmt.Sprintf("vector has %d dims, store has %d", len(query), dimension))
	}

	chunks, err := s.loadChunks(dimension)
	if err != nil {
		return nil, apperr.PersistenceError("load vector store", err)
	}

	scored := make([]out.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) != dimension {
			continue
		}
		scored = append(scored, out.ScoredChunk{
			Chunk: c,
			Score: cosine(query, c.Vector),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *Store) writeAll(dimension int, chunks []out.Chunk) error {
	dir := s.dir(dimension)

	segments := 0
	for start := 0; start < len(chunks); start += segmentSize {
		end := start + segmentSize
		if end > len(chunks) {
			end = len(chunks)
		}
		data, err := json.Marshal(chunks[start:end])
		if err != nil {
			return apperr.PersistenceError("encode vector segment", err)
		}
		name := filepath.Join(dir, fmt.Sprintf("segment_%05d.json", segments))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return apperr.PersistenceError("write vector segment", err)
		}
		segments++
	}

	// drop stale higher-numbered segments from a previous larger build
	for i := segments; ; i++ {
		name := filepath.Join(dir, fmt.Sprintf("segment_%05d.json", i))
		if err := os.Remove(name); err != nil {
			break
		}
	}

	m := meta{
		Dimension: dimension,
		Chunks:    len(chunks),
		Segments:  segments,
		BuiltAt:   time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return apperr.PersistenceError("encode vector meta", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o644); err != nil {
		return apperr.PersistenceError("write vector meta", err)
	}

	s.log.Info().Int("dimension", dimension).Int("chunks", len(chunks)).Int("segments", segments).Msg("vector store written")
	return nil
}

func (s *Store) readMeta(dimension int) (*meta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(dimension), "meta.json"))
	if err != nil {
		return nil, err
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) loadChunks(dimension int) ([]out.Chunk, error) {
	m, err := s.readMeta(dimension)
	if err != nil {
		return nil, err
	}
	chunks := make([]out.Chunk, 0, m.Chunks)
	for i := 0; i < m.Segments; i++ {
		data, err := os.ReadFile(filepath.Join(s.dir(dimension), fmt.Sprintf("segment_%05d.json", i)))
		if err != nil {
			return nil, err
		}
		var seg []out.Chunk
		if err := json.Unmarshal(data, &seg); err != nil {
			return nil, err
		}
		chunks = append(chunks, seg...)
	}
	return chunks, nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ out.VectorStorePort = (*Store)(nil)
