// Package embed turns text into vectors through a pluggable provider,
// with a persistent cache keyed by content fingerprint so repeated
// polls never re-embed unchanged text.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lkraemer/gitscout/internal/database"
)

// ErrEmptyText is returned when asked to embed text that is empty or
// whitespace only. Callers must not treat this as a provider outage.
var ErrEmptyText = errors.New("embed: empty text")

// UnavailableError wraps a provider failure. Scoring falls back to a
// degraded mode when it sees this, instead of failing the whole sweep.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("embedding provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Provider generates embeddings for a batch of texts. Implementations
// must return one vector per input, in order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}

// Cache wraps a Provider with the sqlite-backed embedding cache.
type Cache struct {
	db       *database.DB
	provider Provider
}

// NewCache creates a caching embedder over db and provider.
func NewCache(db *database.DB, provider Provider) *Cache {
	return &Cache{db: db, provider: provider}
}

// Model reports the underlying provider's model name.
func (c *Cache) Model() string { return c.provider.Model() }

// Fingerprint identifies a (model, text) pair. Changing the model
// invalidates all cached vectors without any migration.
func Fingerprint(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns the vector for a single text, consulting the cache first.
func (c *Cache) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts in order, returning one vector per input.
// Cached texts are served from sqlite; all misses go to the provider in
// a single batched call. Duplicate texts are collapsed to one
// computation. Any empty text fails the whole call with ErrEmptyText.
func (c *Cache) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := c.provider.Model()
	vectors := make([][]float64, len(texts))

	// Resolve cache hits and collect unique misses in input order.
	var missTexts []string
	missIndex := make(map[string]int)   // fingerprint -> index into missTexts
	missSlots := make(map[string][]int) // fingerprint -> output positions

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
		fp := Fingerprint(model, text)

		if _, seen := missSlots[fp]; seen {
			missSlots[fp] = append(missSlots[fp], i)
			continue
		}

		vec, found, err := c.db.GetCachedEmbedding(fp)
		if err != nil {
			return nil, fmt.Errorf("reading embedding cache: %w", err)
		}
		if found {
			vectors[i] = vec
			continue
		}

		missIndex[fp] = len(missTexts)
		missTexts = append(missTexts, text)
		missSlots[fp] = []int{i}
	}

	if len(missTexts) > 0 {
		computed, err := c.provider.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, &UnavailableError{Provider: model, Err: err}
		}
		if len(computed) != len(missTexts) {
			return nil, &UnavailableError{
				Provider: model,
				Err:      fmt.Errorf("got %d vectors for %d texts", len(computed), len(missTexts)),
			}
		}

		for fp, slots := range missSlots {
			vec := computed[missIndex[fp]]
			for _, i := range slots {
				vectors[i] = vec
			}
			if err := c.db.PutCachedEmbedding(fp, model, vec); err != nil {
				return nil, fmt.Errorf("writing embedding cache: %w", err)
			}
		}
	}

	return vectors, nil
}
