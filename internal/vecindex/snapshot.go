package vecindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"smart-mcp/internal/domain"
)

const snapshotVersion = 2

const hashTimeLayout = "2006-01-02T15:04:05Z"

// Snapshot is the persisted index state. Model, Dim and StoreHash let the
// loader decide at startup whether the snapshot still describes the current
// store content or a full reindex is due.
//
// StoreHash is computed from the snapshot's own entry set, never from a
// separate store listing: an entry set and its hash are always captured as
// one unit, so a snapshot cannot claim to cover rows its entries lack. When
// a concurrent writer's row is absent from the entries, the hash differs
// from the store's hash at the next startup and a reindex runs instead.
type Snapshot struct {
	Version   int     `json:"version"`
	Model     string  `json:"model"`
	Dim       int     `json:"dim"`
	StoreHash string  `json:"storeHash"`
	Entries   []Entry `json:"entries"`
}

// ErrCorruptSnapshot marks a snapshot file that exists but cannot be
// trusted: unreadable JSON, wrong version, entries whose dimension disagrees
// with the header, or a store hash that does not match the entry set.
var ErrCorruptSnapshot = errors.New("corrupt index snapshot")

func NewSnapshot(ix *Index, model string) Snapshot {
	entries := ix.Entries()
	return Snapshot{
		Version:   snapshotVersion,
		Model:     model,
		Dim:       ix.Dimension(),
		StoreHash: HashEntries(entries),
		Entries:   entries,
	}
}

func SaveSnapshot(path string, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := atomicWriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads and structurally validates a snapshot file. A missing
// file is reported via os.IsNotExist on the returned error.
func LoadSnapshot(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Version != snapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}
	if snap.Dim <= 0 {
		return Snapshot{}, fmt.Errorf("%w: non-positive dimension %d", ErrCorruptSnapshot, snap.Dim)
	}
	for _, e := range snap.Entries {
		if e.ID == "" || !e.Kind.Valid() {
			return Snapshot{}, fmt.Errorf("%w: entry with empty id or unknown kind", ErrCorruptSnapshot)
		}
		if e.UpdatedAt.IsZero() {
			return Snapshot{}, fmt.Errorf("%w: entry %s has no update timestamp", ErrCorruptSnapshot, e.ID)
		}
		if len(e.Vector) != snap.Dim {
			return Snapshot{}, fmt.Errorf("%w: entry %s has dimension %d, header says %d", ErrCorruptSnapshot, e.ID, len(e.Vector), snap.Dim)
		}
	}
	if got := HashEntries(snap.Entries); got != snap.StoreHash {
		return Snapshot{}, fmt.Errorf("%w: store hash does not match entry set", ErrCorruptSnapshot)
	}
	return snap, nil
}

// Compatible reports whether the snapshot can seed an index with the given
// model, dimension and current store content hash.
func (s Snapshot) Compatible(model string, dim int, storeHash string) bool {
	return s.Model == model && s.Dim == dim && s.StoreHash == storeHash
}

// HashStoreContent produces a fingerprint of store content from id and
// update timestamp pairs. Artifacts must be passed in a stable order; the
// repository lists by ascending id.
func HashStoreContent(artifacts []domain.Artifact) string {
	h := sha256.New()
	for _, a := range artifacts {
		h.Write([]byte(a.ID + ":" + a.UpdatedAt.UTC().Format(hashTimeLayout) + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashEntries fingerprints an entry set with the same line format as
// HashStoreContent, so a snapshot matches the store exactly when its
// entries cover the same ids at the same row revisions. Entries must be
// passed ordered by ascending id; Index.Entries returns them that way.
func HashEntries(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.ID + ":" + e.UpdatedAt.UTC().Format(hashTimeLayout) + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// Create temp file in same dir so os.Rename is atomic.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
