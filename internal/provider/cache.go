// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package provider

import (
	"context"

	"github.com/dgraph-io/ristretto"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// DefaultEmbeddingCacheBytes bounds the query embedding cache.
const DefaultEmbeddingCacheBytes = 32 << 20

// CachedEmbedder memoises embeddings by exact input text. Only successful
// embeddings are cached.
type CachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with a cache holding at most maxBytes of
// vector data.
func NewCachedEmbedder(next Embedder, maxBytes int64) (*CachedEmbedder, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultEmbeddingCacheBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		// ~10x the expected number of entries for a 1536-dim vector.
		NumCounters: max(maxBytes/(1536*4)*10, 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeConfigValidateInvalidValue, "creating embedding cache")
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, append([]float32(nil), vec...), int64(len(vec)*4))
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() { c.cache.Wait() }

func (c *CachedEmbedder) Close() { c.cache.Close() }
