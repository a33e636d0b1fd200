// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/store"
)

func TestEvent_Important(t *testing.T) {
	assert.True(t, memory.Event{Action: "task.failed"}.Important())
	assert.True(t, memory.Event{Action: "deployment.success"}.Important())
	assert.False(t, memory.Event{Action: "task.updated"}.Important())
	assert.False(t, memory.Event{}.Important())
}

func TestEvent_SummaryAndContent(t *testing.T) {
	ev := memory.Event{
		EntityType: "task",
		EntityID:   "42",
		Action:     "task.failed",
		ActorID:    "builder",
		Before:     strings.Repeat("b", 300),
		After:      `{"status":"failed","error":"exit code 137"}`,
	}
	assert.Equal(t, "task.failed on task #42 by builder", ev.Summary())
	assert.Equal(t, strings.Join([]string{
		"Action: task.failed",
		"Entity: task #42",
		"Agent: builder",
		`Context: {"status":"failed","error":"exit code 137"}`,
		"Before: " + strings.Repeat("b", 200),
	}, "\n"), ev.Content())

	bare := memory.Event{EntityType: "deployment", EntityID: "7", Action: "deployment"}
	assert.Equal(t, "deployment on deployment #7", bare.Summary())
	assert.Equal(t, "Action: deployment\nEntity: deployment #7", bare.Content())
}

func TestService_IngestIgnoresUnimportant(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	assert.Nil(t, h.svc.IngestEvent(ctx, memory.Event{EntityType: "task", EntityID: "1", Action: "task.updated"}))
	h.svc.Wait()

	nodes, err := h.svc.ListNodes(ctx, memory.ListInput{})
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, h.embedder.calls())
}

// An ingested failure is embedded and linked to the similar node already
// in memory.
func TestService_IngestEmbedsAndEnriches(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	earlier := h.seed(t, store.NodeKindEpisodic, "task #41 failed: builder ran out of memory")
	require.NoError(t, h.graph.SetEmbeddingRef(ctx, earlier.ID, store.PointKey(earlier.ID)))

	// Ids are sequential; the ingested node is the next one.
	next := earlier.ID + 1
	h.index.setHits(hit(next, 1.0), hit(earlier.ID, 0.85))

	n := h.svc.IngestEvent(ctx, memory.Event{
		EntityType: "task",
		EntityID:   "42",
		Action:     "task.failed",
		ActorID:    "builder",
		After:      `{"error":"OOMKilled"}`,
	})
	require.NotNil(t, n)
	assert.Equal(t, store.NodeKindEpisodic, n.Kind)
	assert.Equal(t, store.CreatorSystem, n.CreatedBy)
	assert.Equal(t, "task.failed on task #42 by builder", n.Summary)
	assert.Equal(t, store.EntityTypeTask, n.EntityType)
	assert.Equal(t, "42", n.EntityID)
	assert.Equal(t, []string{"task.failed", "task"}, n.Tags)
	require.Equal(t, next, n.ID)
	h.svc.Wait()

	got, err := h.svc.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PointKey(n.ID), got.EmbeddingRef)
	assert.Equal(t, []string{"task.failed on task #42 by builder"}, h.embedder.calls())

	r, err := h.svc.Recall(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, r.Edges, 1)
	assert.Equal(t, n.ID, r.Edges[0].SourceNodeID)
	assert.Equal(t, earlier.ID, r.Edges[0].TargetNodeID)
	assert.Equal(t, store.RelationRelatedTo, r.Edges[0].Relation)
	assert.InDelta(t, 0.85, r.Edges[0].Weight, 1e-9)

	assert.Equal(t, 0, h.svc.Enrich(ctx, n.ID, []float32{0.1, 0.2, 0.3}))
}

func TestService_IngestAutoExtract(t *testing.T) {
	h := newHarness(t, harnessOpts{noEmbedding: true, cfg: func(c *memory.Config) { c.AutoExtract = true }})
	ctx := context.Background()
	h.completer.reply = `[{"subject": "deploy 7", "relation": "failed_on", "object": "migration"}]`

	n := h.svc.IngestEvent(ctx, memory.Event{EntityType: "deployment", EntityID: "7", Action: "deployment.failed"})
	require.NotNil(t, n)
	h.svc.Wait()

	r, err := h.svc.Recall(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, r.Edges, 1)
	assert.Equal(t, store.RelationLearnedFrom, r.Edges[0].Relation)
}
