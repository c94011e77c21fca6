package domain

import "context"

// Repository persists artifacts.
//
// Layering note: Domain depends on this interface; the SQLite store
// implements it. Mutations are single-row and durable on return; ordering
// across artifacts is the synchronizer's concern, not the repository's.
type Repository interface {
	Insert(ctx context.Context, a Artifact) error
	// Update replaces the full record; ErrNotFound when id is absent.
	Update(ctx context.Context, a Artifact) error
	Get(ctx context.Context, id string) (Artifact, error)
	// List returns artifacts of one kind, or all kinds when kind is empty,
	// ordered by ascending id.
	List(ctx context.Context, kind Kind) ([]Artifact, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
