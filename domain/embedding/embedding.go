// Package embedding models cached answer vectors keyed by normalized text hash.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Entry is a cached embedding vector for one normalized text under one model.
// Entries are immutable once written.
type Entry struct {
	textHash  string
	modelID   string
	vector    []float64
	createdAt time.Time
}

// NewEntry creates a cache entry.
func NewEntry(textHash, modelID string, vector []float64) Entry {
	return Entry{
		textHash: textHash,
		modelID:  modelID,
		vector:   copyVector(vector),
	}
}

// ReconstructEntry rebuilds an Entry from storage.
func ReconstructEntry(textHash, modelID string, vector []float64, createdAt time.Time) Entry {
	e := NewEntry(textHash, modelID, vector)
	e.createdAt = createdAt
	return e
}

// TextHash returns the normalized text hash.
func (e Entry) TextHash() string { return e.textHash }

// ModelID returns the embedding model that produced the vector.
func (e Entry) ModelID() string { return e.modelID }

// Vector returns a copy of the vector.
func (e Entry) Vector() []float64 { return copyVector(e.vector) }

// Dimension returns the vector length.
func (e Entry) Dimension() int { return len(e.vector) }

// CreatedAt returns when the entry was first stored.
func (e Entry) CreatedAt() time.Time { return e.createdAt }

// Key returns the cache key for the entry.
func (e Entry) Key() Key { return Key{TextHash: e.textHash, ModelID: e.modelID} }

// Key identifies a cache entry. A model upgrade changes ModelID and so
// misses the cache instead of serving vectors from the old model.
type Key struct {
	TextHash string
	ModelID  string
}

// String returns "model:hash", used as the key in external caches.
func (k Key) String() string {
	return k.ModelID + ":" + k.TextHash
}

// Normalize canonicalizes answer text for hashing: NFKC, lower case,
// collapsed whitespace, trimmed.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// HashText returns the hex SHA-256 of the normalized text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Store is the durable cache backend.
type Store interface {
	// FindByHashes returns the entries found for model and hashes. Missing hashes are omitted.
	FindByHashes(ctx context.Context, modelID string, hashes []string) ([]Entry, error)
	// SaveAll upserts entries; writing an existing key overwrites it.
	SaveAll(ctx context.Context, entries []Entry) error
}

// Tier is a best-effort cache in front of the Store.
type Tier interface {
	Name() string
	GetMany(ctx context.Context, keys []Key) (map[Key][]float64, error)
	SetMany(ctx context.Context, entries []Entry) error
}

// Lookup is the result of partitioning answers into cache hits and misses.
type Lookup struct {
	Cached  map[int64][]float64
	Missing []int64
}

func copyVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Embedder converts texts into vectors, one per text in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
