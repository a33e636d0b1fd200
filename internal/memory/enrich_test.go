// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/store"
)

func TestService_EnrichLinksNeighbors(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	self := h.seed(t, store.NodeKindEpisodic, "api deploy failed")
	near := h.seed(t, store.NodeKindEpisodic, "api deploy failed again")
	edge := h.seed(t, store.NodeKindEpisodic, "worker deploy failed")
	far := h.seed(t, store.NodeKindSemantic, "lunch menu")

	h.index.setHits(hit(self.ID, 1.0), hit(near.ID, 0.93), hit(edge.ID, 0.8), hit(far.ID, 0.79))

	vec := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, 2, h.svc.Enrich(ctx, self.ID, vec))

	q := h.index.lastQuery()
	assert.Equal(t, 6, q.Limit)
	assert.InDelta(t, 0.8, q.ScoreThreshold, 0)
	assert.Equal(t, vec, q.Vector)

	r, err := h.svc.Recall(ctx, self.ID)
	require.NoError(t, err)
	require.Len(t, r.Edges, 2)
	for _, e := range r.Edges {
		assert.Equal(t, self.ID, e.SourceNodeID)
		assert.Equal(t, store.RelationRelatedTo, e.Relation)
	}
	assert.Equal(t, near.ID, r.Edges[0].TargetNodeID)
	assert.InDelta(t, 0.93, r.Edges[0].Weight, 1e-9)
	assert.Equal(t, edge.ID, r.Edges[1].TargetNodeID)
	assert.InDelta(t, 0.8, r.Edges[1].Weight, 1e-9)

	// A second run finds the same neighbors and adds nothing.
	assert.Equal(t, 0, h.svc.Enrich(ctx, self.ID, vec))
	r, err = h.svc.Recall(ctx, self.ID)
	require.NoError(t, err)
	assert.Len(t, r.Edges, 2)
}

func TestService_EnrichSkipsStaleAndUnparseableHits(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	self := h.seed(t, store.NodeKindEpisodic, "disk full on db-1")
	live := h.seed(t, store.NodeKindEpisodic, "disk full on db-2")

	h.index.setHits(
		store.VectorHit{Key: "legacy-point", Score: 0.99},
		hit(9999, 0.98),
		hit(live.ID, 0.9),
	)

	assert.Equal(t, 1, h.svc.Enrich(ctx, self.ID, []float32{1, 0, 0}))
	has, err := h.graph.HasEdge(ctx, self.ID, live.ID, store.RelationRelatedTo)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestService_EnrichCapsCandidates(t *testing.T) {
	h := newHarness(t, harnessOpts{cfg: func(c *memory.Config) { c.EnrichNeighbors = 2 }})
	ctx := context.Background()

	self := h.seed(t, store.NodeKindSemantic, "a")
	b := h.seed(t, store.NodeKindSemantic, "b")
	c := h.seed(t, store.NodeKindSemantic, "c")
	d := h.seed(t, store.NodeKindSemantic, "d")
	h.index.setHits(hit(b.ID, 0.99), hit(self.ID, 0.98), hit(c.ID, 0.97), hit(d.ID, 0.96))

	assert.Equal(t, 2, h.svc.Enrich(ctx, self.ID, []float32{1}))
	assert.Equal(t, 3, h.index.lastQuery().Limit)

	has, err := h.graph.HasEdge(ctx, self.ID, d.ID, store.RelationRelatedTo)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestService_EnrichSearchFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	self := h.seed(t, store.NodeKindSemantic, "a")
	h.index.searchErr = errors.New("connection refused")

	assert.Equal(t, 0, h.svc.Enrich(ctx, self.ID, []float32{1}))
}

func TestService_EnrichWithoutVector(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	self := h.seed(t, store.NodeKindSemantic, "a")

	assert.Equal(t, 0, h.svc.Enrich(context.Background(), self.ID, nil))
	assert.Empty(t, h.index.queries)
}

func TestRoundWeight(t *testing.T) {
	assert.InDelta(t, 0.85, memory.RoundWeight(0.8512), 1e-9)
	assert.InDelta(t, 0.86, memory.RoundWeight(0.856), 1e-9)
	assert.InDelta(t, 1.0, memory.RoundWeight(1.0000004), 1e-9)
	assert.InDelta(t, 0.0, memory.RoundWeight(-0.2), 1e-9)
}
