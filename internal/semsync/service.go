// Package semsync keeps the vector index consistent with the artifact
// store. It is the sole writer to the index and the single search entry
// point: both the MCP meta-tools and the REST surface go through it.
package semsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"smart-mcp/internal/domain"
	"smart-mcp/internal/embedding"
	"smart-mcp/internal/vecindex"
)

// Service wraps every store mutation with the matching index update.
//
// Locking: mutations hold the reindex read-lock plus a per-artifact-id
// mutex, so operations on distinct ids run in parallel while two writers on
// one id serialize. ReindexAll takes the reindex write-lock and therefore
// runs exclusively.
type Service struct {
	repo         domain.Repository
	provider     embedding.Provider
	index        *vecindex.Index
	snapshotPath string
	logger       *slog.Logger

	reindexMu sync.RWMutex
	snapMu    sync.Mutex

	idMu    sync.Mutex
	idLocks map[string]*idLock

	readyMu sync.RWMutex
	ready   bool
}

// idLock is reference counted so the per-id map entry can be reclaimed
// once the last writer on that id releases it.
type idLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(repo domain.Repository, provider embedding.Provider, index *vecindex.Index, snapshotPath string) *Service {
	return &Service{
		repo:         repo,
		provider:     provider,
		index:        index,
		snapshotPath: snapshotPath,
		logger:       slog.Default().With("component", "semsync"),
		idLocks:      map[string]*idLock{},
	}
}

// Start brings the index in line with the store. A persisted snapshot is
// used only when its model, dimension and store content hash all match;
// anything else (missing, stale, corrupt) triggers a full reindex before
// search becomes available.
func (s *Service) Start(ctx context.Context) error {
	artifacts, err := s.repo.List(ctx, "")
	if err != nil {
		return fmt.Errorf("listing store for index startup: %w", err)
	}
	storeHash := vecindex.HashStoreContent(artifacts)

	snap, err := vecindex.LoadSnapshot(s.snapshotPath)
	switch {
	case err == nil && snap.Compatible(s.provider.ModelName(), s.provider.Dimension(), storeHash):
		if err := s.index.Rebuild(snap.Entries); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
		}
		s.setReady(true)
		s.logger.Info("index restored from snapshot", "entries", len(snap.Entries))
		return nil
	case err == nil:
		s.logger.Info("index snapshot is stale, reindexing",
			"snapshot_model", snap.Model, "snapshot_dim", snap.Dim)
	case os.IsNotExist(err):
		s.logger.Info("no index snapshot, reindexing")
	case errors.Is(err, vecindex.ErrCorruptSnapshot):
		s.logger.Warn("index snapshot is corrupt, reindexing", "error", err)
	default:
		return fmt.Errorf("loading index snapshot: %w", err)
	}

	return s.ReindexAll(ctx)
}

// Ready reports whether search is available. CRUD stays usable regardless.
func (s *Service) Ready() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

func (s *Service) setReady(v bool) {
	s.readyMu.Lock()
	s.ready = v
	s.readyMu.Unlock()
}

// Create embeds first, so an embedding failure aborts with the store and
// the index both untouched.
func (s *Service) Create(ctx context.Context, in domain.CreateInput) (domain.Artifact, error) {
	a, err := in.Validate()
	if err != nil {
		return domain.Artifact{}, err
	}

	vec, err := s.embed(ctx, a.SearchableText())
	if err != nil {
		return domain.Artifact{}, err
	}

	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()

	a.ID = domain.NewID(a.Kind)
	a.UpdatedAt = domain.NowUTC()

	unlock := s.lockID(a.ID)
	defer unlock()

	if err := s.repo.Insert(ctx, a); err != nil {
		return domain.Artifact{}, err
	}
	if err := s.index.Upsert(a.ID, a.Kind, a.UpdatedAt, vec); err != nil {
		// The store row must not outlive a failed index write.
		if delErr := s.repo.Delete(ctx, a.ID); delErr != nil {
			s.logger.Error("rollback after index failure failed", "id", a.ID, "error", delErr)
		}
		return domain.Artifact{}, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	s.persistSnapshot()
	s.logger.Info("artifact created", "id", a.ID, "kind", a.Kind)
	return a, nil
}

// Update serializes with other writers on the same id. The new searchable
// text is embedded before the store row changes, so embedding failures
// leave both sides at the previous state.
func (s *Service) Update(ctx context.Context, id string, in domain.UpdateInput) (domain.Artifact, error) {
	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()

	unlock := s.lockID(id)
	defer unlock()

	old, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Artifact{}, err
	}

	next, err := in.Apply(old)
	if err != nil {
		return domain.Artifact{}, err
	}
	next.UpdatedAt = domain.NowUTC()

	vec, err := s.embed(ctx, next.SearchableText())
	if err != nil {
		return domain.Artifact{}, err
	}

	if err := s.repo.Update(ctx, next); err != nil {
		return domain.Artifact{}, err
	}
	if err := s.index.Upsert(next.ID, next.Kind, next.UpdatedAt, vec); err != nil {
		if restoreErr := s.repo.Update(ctx, old); restoreErr != nil {
			s.logger.Error("rollback after index failure failed", "id", id, "error", restoreErr)
		}
		return domain.Artifact{}, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	s.persistSnapshot()
	s.logger.Info("artifact updated", "id", next.ID, "kind", next.Kind)
	return next, nil
}

// Delete removes the store row and then the index entry; when the call
// returns successfully the id is gone from both.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()

	unlock := s.lockID(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		// Clear any leftover entry even when the row was already gone.
		if errors.Is(err, domain.ErrNotFound) {
			s.index.Remove(id)
		}
		return err
	}
	s.index.Remove(id)

	s.persistSnapshot()
	s.logger.Info("artifact deleted", "id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Artifact, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, kind domain.Kind) ([]domain.Artifact, error) {
	return s.repo.List(ctx, kind)
}

// SearchHit pairs an index hit with the hydrated record.
type SearchHit struct {
	Artifact domain.Artifact
	Score    float64
}

// Search embeds the query and delegates to the index. Hits whose record
// disappeared between the index read and hydration are dropped.
func (s *Service) Search(ctx context.Context, query string, k int, kind domain.Kind) ([]SearchHit, error) {
	if !s.Ready() {
		return nil, domain.ErrSearchNotReady
	}
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Query(vec, k, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		a, err := s.repo.Get(ctx, h.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, SearchHit{Artifact: a, Score: h.Score})
	}
	return out, nil
}

// ReindexAll rebuilds the whole index from store content. It runs
// exclusively: mutations block until the rebuild finishes, and readers keep
// seeing the prior complete index until the atomic swap.
func (s *Service) ReindexAll(ctx context.Context) error {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	artifacts, err := s.repo.List(ctx, "")
	if err != nil {
		return fmt.Errorf("listing store for reindex: %w", err)
	}

	entries := make([]vecindex.Entry, 0, len(artifacts))
	for _, a := range artifacts {
		vec, err := s.embed(ctx, a.SearchableText())
		if err != nil {
			return fmt.Errorf("reindexing %s: %w", a.ID, err)
		}
		entries = append(entries, vecindex.Entry{ID: a.ID, Kind: a.Kind, UpdatedAt: a.UpdatedAt, Vector: vec})
	}

	if err := s.index.Rebuild(entries); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexCorruption, err)
	}

	s.persistSnapshot()

	s.setReady(true)
	s.logger.Info("index rebuilt", "entries", len(entries))
	return nil
}

// Flush persists the current index state; called at shutdown.
func (s *Service) Flush(ctx context.Context) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	snap := vecindex.NewSnapshot(s.index, s.provider.ModelName())
	return vecindex.SaveSnapshot(s.snapshotPath, snap)
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vec) != s.provider.Dimension() {
		return nil, fmt.Errorf("%w: provider returned dimension %d, configured %d",
			domain.ErrIndexCorruption, len(vec), s.provider.Dimension())
	}
	return vec, nil
}

// persistSnapshot is best effort: a failed write only means the next
// startup falls back to a full reindex, which the store hash detects.
//
// The snapshot is built from the index alone, under snapMu so concurrent
// writers never interleave captures with file writes. Its store hash is
// derived from the captured entry set; if another writer's mutation is not
// in the index yet, the persisted hash simply will not match the store at
// the next startup and a reindex runs.
func (s *Service) persistSnapshot() {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	snap := vecindex.NewSnapshot(s.index, s.provider.ModelName())
	if err := vecindex.SaveSnapshot(s.snapshotPath, snap); err != nil {
		s.logger.Warn("persisting index snapshot failed", "error", err)
	}
}

func (s *Service) lockID(id string) func() {
	s.idMu.Lock()
	l, ok := s.idLocks[id]
	if !ok {
		l = &idLock{}
		s.idLocks[id] = l
	}
	l.refs++
	s.idMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.idMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.idLocks, id)
		}
		s.idMu.Unlock()
	}
}
