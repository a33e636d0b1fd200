// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package store

import "context"

// Point is one entry of the vector index.
type Point struct {
	Key     string
	Vector  []float32
	Payload map[string]any
}

// VectorQuery describes a nearest-neighbour search.
type VectorQuery struct {
	Vector []float32
	Limit  int
	// ScoreThreshold drops hits whose similarity is below it.
	ScoreThreshold float64
}

// VectorHit is a search result. Score is a cosine similarity; higher is
// closer.
type VectorHit struct {
	Key     string
	Score   float64
	Payload map[string]any
}

// VectorIndex is the derived, best-effort similarity index. It may be stale
// relative to the GraphStore; consumers re-validate hits against the store.
type VectorIndex interface {
	// EnsureCollection creates the backing collection when it is missing.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, p Point) error
	Search(ctx context.Context, q VectorQuery) ([]VectorHit, error)
	Delete(ctx context.Context, keys []string) error
	Close() error
}
