package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Hasher is a local, dependency-free embedder built on token feature
// hashing. It is not a semantic model, but it is deterministic, honors the
// configured dimension, and keeps related texts close enough for tests and
// offline runs. Vectors are L2-normalized.
type Hasher struct {
	dim   int
	model string
}

func NewHasher(dim int, model string) *Hasher {
	if model == "" {
		model = "hash-v1"
	}
	return &Hasher{dim: dim, model: model}
}

func (h *Hasher) Dimension() int    { return h.dim }
func (h *Hasher) ModelName() string { return h.model }

func (h *Hasher) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, token := range tokenize(text) {
		hash := fnv.New64a()
		hash.Write([]byte(h.model))
		hash.Write([]byte{0})
		hash.Write([]byte(token))
		sum := hash.Sum64()

		bucket := int(sum % uint64(h.dim))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}
	normalize(vec)
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
