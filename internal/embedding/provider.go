// Package embedding abstracts the text-to-vector model behind a small
// interface so the synchronizer never learns which model is in use.
package embedding

import "context"

// Provider turns text into a fixed-length vector. Embed must be
// deterministic for a given model: the index synchronizer relies on
// re-embedding the same text producing the same vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}
