package vecindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mcp/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Upsert("prompt_1", domain.KindPrompt, indexedAt, []float32{1, 0}))
	require.NoError(t, ix.Upsert("tool_1", domain.KindTool, indexedAt, []float32{0, 1}))

	path := filepath.Join(t.TempDir(), "nested", "index.snapshot.json")
	snap := NewSnapshot(ix, "hash-v1")
	require.NoError(t, SaveSnapshot(path, snap))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snapshotVersion, loaded.Version)
	assert.Equal(t, "hash-v1", loaded.Model)
	assert.Equal(t, 2, loaded.Dim)
	assert.Equal(t, HashEntries(ix.Entries()), loaded.StoreHash)
	require.Len(t, loaded.Entries, 2)

	restored := New(2)
	require.NoError(t, restored.Rebuild(loaded.Entries))
	assert.Equal(t, 2, restored.Len())
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"not json":      "{not json",
		"wrong version": `{"version":99,"model":"m","dim":2,"storeHash":"h","entries":[]}`,
		"bad dimension": `{"version":2,"model":"m","dim":0,"storeHash":"h","entries":[]}`,
		"entry mismatch": `{"version":2,"model":"m","dim":2,"storeHash":"h",` +
			`"entries":[{"id":"tool_1","kind":"tool","updatedAt":"2025-06-01T12:00:00Z","vector":[1]}]}`,
		"unknown kind": `{"version":2,"model":"m","dim":1,"storeHash":"h",` +
			`"entries":[{"id":"x_1","kind":"widget","updatedAt":"2025-06-01T12:00:00Z","vector":[1]}]}`,
		"missing timestamp": `{"version":2,"model":"m","dim":1,"storeHash":"h",` +
			`"entries":[{"id":"tool_1","kind":"tool","vector":[1]}]}`,
		"hash entry mismatch": `{"version":2,"model":"m","dim":1,"storeHash":"h",` +
			`"entries":[{"id":"tool_1","kind":"tool","updatedAt":"2025-06-01T12:00:00Z","vector":[1]}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := LoadSnapshot(path)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

// A snapshot whose hash covers more entries than its entry set contains is
// rejected at load time rather than trusted as current.
func TestLoadSnapshotRejectsDroppedEntry(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Upsert("prompt_1", domain.KindPrompt, indexedAt, []float32{1, 0}))
	require.NoError(t, ix.Upsert("tool_1", domain.KindTool, indexedAt, []float32{0, 1}))

	snap := NewSnapshot(ix, "hash-v1")
	full := snap.StoreHash
	snap.Entries = snap.Entries[:1]
	snap.StoreHash = full

	path := filepath.Join(t.TempDir(), "index.snapshot.json")
	require.NoError(t, SaveSnapshot(path, snap))

	_, err := LoadSnapshot(path)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestSnapshotCompatible(t *testing.T) {
	snap := Snapshot{Version: snapshotVersion, Model: "m", Dim: 4, StoreHash: "h"}

	assert.True(t, snap.Compatible("m", 4, "h"))
	assert.False(t, snap.Compatible("other", 4, "h"))
	assert.False(t, snap.Compatible("m", 8, "h"))
	assert.False(t, snap.Compatible("m", 4, "changed"))
}

func TestHashStoreContentTracksUpdates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := domain.Artifact{ID: "prompt_1", UpdatedAt: now}
	b := domain.Artifact{ID: "tool_1", UpdatedAt: now}

	h1 := HashStoreContent([]domain.Artifact{a, b})
	h2 := HashStoreContent([]domain.Artifact{a, b})
	assert.Equal(t, h1, h2)

	b.UpdatedAt = now.Add(time.Second)
	assert.NotEqual(t, h1, HashStoreContent([]domain.Artifact{a, b}))

	assert.NotEqual(t, h1, HashStoreContent([]domain.Artifact{a}))
}

// HashEntries and HashStoreContent agree on the same id and timestamp
// pairs, which is what lets startup compare a snapshot against the store.
func TestHashEntriesMatchesStoreHash(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	artifacts := []domain.Artifact{
		{ID: "prompt_1", UpdatedAt: now},
		{ID: "tool_1", UpdatedAt: now.Add(time.Minute)},
	}
	entries := []Entry{
		{ID: "prompt_1", UpdatedAt: now},
		{ID: "tool_1", UpdatedAt: now.Add(time.Minute)},
	}

	assert.Equal(t, HashStoreContent(artifacts), HashEntries(entries))
	assert.NotEqual(t, HashStoreContent(artifacts), HashEntries(entries[:1]))
}
