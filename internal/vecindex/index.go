// Package vecindex implements an exact nearest-neighbor index over
// fixed-dimension vectors, keyed by artifact id.
//
// Similarity is cosine: callers store L2-normalized vectors, so the score
// is a plain inner product. Ranking is deterministic; equal scores are
// broken by ascending artifact id.
package vecindex

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"smart-mcp/internal/domain"
)

// ErrDimensionMismatch means a vector does not match the index dimension.
// This is a configuration fault (embedding provider and index disagree),
// never a per-request condition.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry records the vector for one artifact together with the update
// timestamp of the store row it was computed from. The timestamp ties the
// vector to a specific row revision: snapshots hash over it, so a persisted
// entry computed from an older revision can never pass for current.
type Entry struct {
	ID        string      `json:"id"`
	Kind      domain.Kind `json:"kind"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Vector    []float32   `json:"vector"`
}

type Hit struct {
	ID    string      `json:"id"`
	Kind  domain.Kind `json:"kind"`
	Score float64     `json:"score"`
}

// Index is safe for concurrent use. A single RWMutex guards the whole
// structure: queries take the read lock and therefore always observe a
// complete point-in-time state, never a half-applied upsert or rebuild.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]Entry
}

func New(dim int) *Index {
	return &Index{dim: dim, entries: map[string]Entry{}}
}

func (ix *Index) Dimension() int { return ix.dim }

// Upsert inserts or replaces the entry for id. Idempotent: repeating the
// call with the same vector and timestamp leaves the index unchanged.
func (ix *Index) Upsert(id string, kind domain.Kind, updatedAt time.Time, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d, index dimension is %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[id] = Entry{ID: id, Kind: kind, UpdatedAt: updatedAt, Vector: stored}
	return nil
}

// Remove deletes the entry for id; absent ids are a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, id)
}

// Query returns up to k entries ranked by descending cosine score against
// vec, optionally restricted to one kind. An empty index yields an empty
// slice.
func (ix *Index) Query(vec []float32, k int, kind domain.Kind) ([]Hit, error) {
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	ix.mu.RLock()
	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		hits = append(hits, Hit{ID: e.ID, Kind: e.Kind, Score: dot(vec, e.Vector)})
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Rebuild replaces the entire index content in one swap. Dimensions are
// validated up front; a single bad entry rejects the whole batch so readers
// never see a partially rebuilt index.
func (ix *Index) Rebuild(entries []Entry) error {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if len(e.Vector) != ix.dim {
			return fmt.Errorf("%w: entry %s has %d, index dimension is %d", ErrDimensionMismatch, e.ID, len(e.Vector), ix.dim)
		}
		stored := make([]float32, len(e.Vector))
		copy(stored, e.Vector)
		next[e.ID] = Entry{ID: e.ID, Kind: e.Kind, UpdatedAt: e.UpdatedAt, Vector: stored}
	}

	ix.mu.Lock()
	ix.entries = next
	ix.mu.Unlock()
	return nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Entries returns a copy of the index content ordered by id, for snapshots.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		out = append(out, Entry{ID: e.ID, Kind: e.Kind, UpdatedAt: e.UpdatedAt, Vector: vec})
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
