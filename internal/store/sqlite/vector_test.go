// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/store"
	"github.com/palais-dev/palais/internal/store/sqlite"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func newTestVectors(t *testing.T) *sqlite.VectorIndex {
	t.Helper()
	vi, err := sqlite.NewVectorIndex(testDBPath(t, "vectors"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vi.Close() })
	return vi
}

func TestVectorIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	vi := newTestVectors(t)

	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-1", Vector: []float32{1, 0, 0}, Payload: map[string]any{"nodeId": float64(1)}}))
	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-2", Vector: []float32{0, 1, 0}}))
	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-3", Vector: []float32{0.9, 0.1, 0}}))

	hits, err := vi.Search(ctx, store.VectorQuery{Vector: []float32{1, 0, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "node-1", hits[0].Key)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, float64(1), hits[0].Payload["nodeId"])
	assert.Equal(t, "node-3", hits[1].Key)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorIndex_ScoreThreshold(t *testing.T) {
	ctx := context.Background()
	vi := newTestVectors(t)

	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-1", Vector: []float32{1, 0, 0}}))
	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-2", Vector: []float32{0, 1, 0}}))

	hits, err := vi.Search(ctx, store.VectorQuery{Vector: []float32{1, 0, 0}, Limit: 10, ScoreThreshold: 0.8})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "node-1", hits[0].Key)
}

func TestVectorIndex_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	vi := newTestVectors(t)

	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-1", Vector: []float32{1, 0, 0}, Payload: map[string]any{"version": float64(1)}}))
	require.NoError(t, vi.Upsert(ctx, store.Point{Key: "node-1", Vector: []float32{0, 1, 0}, Payload: map[string]any{"version": float64(2)}}))

	hits, err := vi.Search(ctx, store.VectorQuery{Vector: []float32{0, 1, 0}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "node-1", hits[0].Key)
	assert.Equal(t, float64(2), hits[0].Payload["version"])
}

func TestVectorIndex_Delete(t *testing.T) {
	ctx := context.Background()
	vi := newTestVectors(t)

	for _, key := range []string{"node-1", "node-2", "node-3"} {
		require.NoError(t, vi.Upsert(ctx, store.Point{Key: key, Vector: []float32{1, 0, 0}}))
	}
	require.NoError(t, vi.Delete(ctx, []string{"node-1", "node-3"}))
	require.NoError(t, vi.Delete(ctx, nil))

	hits, err := vi.Search(ctx, store.VectorQuery{Vector: []float32{1, 0, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "node-2", hits[0].Key)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	vi := newTestVectors(t)

	err := vi.Upsert(ctx, store.Point{Key: "node-1", Vector: []float32{1, 0}})
	require.Error(t, err)
	assert.True(t, palaiserr.IsInvalidInput(err))

	_, err = vi.Search(ctx, store.VectorQuery{Vector: []float32{1, 0, 0, 0}, Limit: 1})
	assert.True(t, palaiserr.IsInvalidInput(err))
}

func TestVectorIndex_EnsureCollectionIdempotent(t *testing.T) {
	vi := newTestVectors(t)
	require.NoError(t, vi.EnsureCollection(context.Background()))
	require.NoError(t, vi.EnsureCollection(context.Background()))
}
