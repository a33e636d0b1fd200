// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func TestNewService_RequiresGraph(t *testing.T) {
	_, err := memory.NewService(memory.Deps{}, memory.DefaultConfig())
	require.Error(t, err)
	assert.True(t, palaiserr.IsInvalidInput(err))
}

func TestService_CreateNodeValidation(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	tests := []struct {
		name  string
		in    memory.NodeInput
		field string
	}{
		{"missing content", memory.NodeInput{Kind: store.NodeKindSemantic}, "content"},
		{"missing kind", memory.NodeInput{Content: "x"}, "kind"},
		{"unknown kind", memory.NodeInput{Kind: "dream", Content: "x"}, "kind"},
		{"unknown creator", memory.NodeInput{Kind: store.NodeKindSemantic, Content: "x", CreatedBy: "robot"}, "createdBy"},
		{"empty tag", memory.NodeInput{Kind: store.NodeKindSemantic, Content: "x", Tags: []string{""}}, "tags[0]"},
		{"oversized content", memory.NodeInput{Kind: store.NodeKindSemantic, Content: strings.Repeat("a", 65537)}, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateNode(ctx, tt.in)
			requireCode(t, err, palaiserr.CodeMemoryNodeInvalid)
			assert.Contains(t, palaiserr.FieldsOf(err)["fields"], tt.field)
		})
	}

	nodes, err := h.svc.ListNodes(ctx, memory.ListInput{})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestService_CreateNodeEmbedsInBackground(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	n, err := h.svc.CreateNode(ctx, memory.NodeInput{
		Kind:       store.NodeKindEpisodic,
		Content:    "the api deploy failed with OOMKilled on node pool b",
		Summary:    "api deploy OOM",
		EntityType: store.EntityTypeDeployment,
		EntityID:   "17",
		Tags:       []string{"deployment"},
	})
	require.NoError(t, err)
	assert.Positive(t, n.ID)
	assert.Equal(t, store.CreatorSystem, n.CreatedBy)
	assert.Empty(t, n.EmbeddingRef)

	h.svc.Wait()

	got, err := h.svc.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PointKey(n.ID), got.EmbeddingRef)
	assert.Equal(t, []string{"api deploy OOM"}, h.embedder.calls())

	p, ok := h.index.point(store.PointKey(n.ID))
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, p.Vector)
	assert.Equal(t, n.ID, p.Payload["nodeId"])
	assert.Equal(t, "episodic", p.Payload["kind"])
	assert.Equal(t, "deployment", p.Payload["entityType"])
	assert.Equal(t, "17", p.Payload["entityId"])

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.NodesCreated.WithLabelValues("episodic")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Tasks.WithLabelValues("embed", "ok")), 0)
}

func TestService_CreateNodeWithoutEmbedding(t *testing.T) {
	h := newHarness(t, harnessOpts{noEmbedding: true})
	ctx := context.Background()

	n, err := h.svc.CreateNode(ctx, memory.NodeInput{Kind: store.NodeKindProcedural, Content: "restart the worker after config changes"})
	require.NoError(t, err)
	h.svc.Wait()

	got, err := h.svc.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.Embedded())
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.Tasks.WithLabelValues("embed", "failed")), 0)
}

func TestService_GetNodeNotFound(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	_, err := h.svc.GetNode(context.Background(), 4242)
	require.Error(t, err)
	assert.True(t, palaiserr.IsNotFound(err))
}

func TestService_ListNodesNewestFirst(t *testing.T) {
	h := newHarness(t, harnessOpts{noEmbedding: true})
	ctx := context.Background()

	first := h.seed(t, store.NodeKindEpisodic, "first")
	second := h.seed(t, store.NodeKindSemantic, "second")
	third := h.seed(t, store.NodeKindEpisodic, "third")

	nodes, err := h.svc.ListNodes(ctx, memory.ListInput{})
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []int64{third.ID, second.ID, first.ID}, []int64{nodes[0].ID, nodes[1].ID, nodes[2].ID})

	nodes, err = h.svc.ListNodes(ctx, memory.ListInput{Kind: store.NodeKindEpisodic, Limit: 1})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, third.ID, nodes[0].ID)

	_, err = h.svc.ListNodes(ctx, memory.ListInput{Kind: "dream"})
	requireCode(t, err, palaiserr.CodeMemoryNodeInvalid)
}

func TestService_CreateEdge(t *testing.T) {
	h := newHarness(t, harnessOpts{noEmbedding: true})
	ctx := context.Background()

	a := h.seed(t, store.NodeKindEpisodic, "deploy failed")
	b := h.seed(t, store.NodeKindEpisodic, "rolled back deploy")

	t.Run("defaults weight to one", func(t *testing.T) {
		e, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: b.ID, Relation: store.RelationResolvedBy})
		require.NoError(t, err)
		assert.Positive(t, e.ID)
		assert.InDelta(t, 1.0, e.Weight, 0)
	})

	t.Run("explicit weight", func(t *testing.T) {
		w := 0.4
		e, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: b.ID, TargetNodeID: a.ID, Relation: store.RelationCausedBy, Weight: &w})
		require.NoError(t, err)
		assert.InDelta(t, 0.4, e.Weight, 0)
	})

	t.Run("self loop", func(t *testing.T) {
		_, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: a.ID, Relation: store.RelationSupersedes})
		requireCode(t, err, palaiserr.CodeMemoryEdgeSelfLoop)
		assert.True(t, palaiserr.IsInvalidInput(err))
	})

	t.Run("weight out of range", func(t *testing.T) {
		w := 1.5
		_, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: b.ID, Relation: store.RelationCausedBy, Weight: &w})
		requireCode(t, err, palaiserr.CodeMemoryEdgeInvalid)
	})

	t.Run("unknown relation", func(t *testing.T) {
		_, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: b.ID, Relation: "likes"})
		requireCode(t, err, palaiserr.CodeMemoryEdgeInvalid)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		_, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: 9999, Relation: store.RelationCausedBy})
		require.Error(t, err)
		assert.True(t, palaiserr.IsNotFound(err))
	})

	t.Run("duplicate related_to", func(t *testing.T) {
		_, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: b.ID, Relation: store.RelationRelatedTo})
		require.NoError(t, err)
		_, err = h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: a.ID, TargetNodeID: b.ID, Relation: store.RelationRelatedTo})
		require.Error(t, err)
		assert.True(t, palaiserr.IsConflict(err))
	})
}

func TestService_RecallAndGraph(t *testing.T) {
	h := newHarness(t, harnessOpts{noEmbedding: true})
	ctx := context.Background()

	center := h.seed(t, store.NodeKindEpisodic, "worker crashed")
	cause := h.seed(t, store.NodeKindSemantic, "memory leak in parser")
	fix := h.seed(t, store.NodeKindProcedural, "bump parser to 2.1")
	unrelated := h.seed(t, store.NodeKindSemantic, "unrelated")

	_, err := h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: center.ID, TargetNodeID: cause.ID, Relation: store.RelationCausedBy})
	require.NoError(t, err)
	_, err = h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: fix.ID, TargetNodeID: center.ID, Relation: store.RelationResolvedBy})
	require.NoError(t, err)
	_, err = h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: cause.ID, TargetNodeID: center.ID, Relation: store.RelationRelatedTo})
	require.NoError(t, err)
	_, err = h.svc.CreateEdge(ctx, memory.EdgeInput{SourceNodeID: cause.ID, TargetNodeID: unrelated.ID, Relation: store.RelationRelatedTo})
	require.NoError(t, err)

	r, err := h.svc.Recall(ctx, center.ID)
	require.NoError(t, err)
	assert.Equal(t, center.ID, r.Node.ID)
	assert.Len(t, r.Edges, 3)

	g, err := h.svc.Graph(ctx, center.ID)
	require.NoError(t, err)
	assert.Len(t, g.Edges, 3)
	require.Len(t, g.Connected, 2)
	assert.Equal(t, cause.ID, g.Connected[0].ID)
	assert.Equal(t, "memory leak in parser", g.Connected[0].Content)
	assert.Equal(t, fix.ID, g.Connected[1].ID)

	lonely, err := h.svc.Graph(ctx, unrelated.ID)
	require.NoError(t, err)
	require.Len(t, lonely.Connected, 1)

	_, err = h.svc.Recall(ctx, 9999)
	assert.True(t, palaiserr.IsNotFound(err))
}

func TestService_ReembedHealsFailedEmbedding(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	h.embedder.setErr(palaiserr.New(palaiserr.CodeProviderUpstreamFailure, "gateway down"))
	n, err := h.svc.CreateNode(ctx, memory.NodeInput{Kind: store.NodeKindSemantic, Content: "redis maxmemory is 2gb"})
	require.NoError(t, err)
	h.svc.Wait()

	got, err := h.svc.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.Embedded())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Tasks.WithLabelValues("embed", "failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.ExternalFailures.WithLabelValues("embedding")), 0)

	h.embedder.setErr(nil)
	taskID, err := h.svc.Reembed(ctx, n.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)
	h.svc.Wait()

	got, err = h.svc.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PointKey(n.ID), got.EmbeddingRef)
}

func TestService_ReembedErrors(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, harnessOpts{})
	_, err := h.svc.Reembed(ctx, 9999)
	assert.True(t, palaiserr.IsNotFound(err))

	bare := newHarness(t, harnessOpts{noEmbedding: true})
	n := bare.seed(t, store.NodeKindSemantic, "fact")
	_, err = bare.svc.Reembed(ctx, n.ID)
	requireCode(t, err, palaiserr.CodeMemoryEmbeddingOff)
	assert.Equal(t, http.StatusServiceUnavailable, palaiserr.HTTPStatus(err))
}

func TestService_EmbedOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		n := h.seed(t, store.NodeKindSemantic, "content used when summary is empty")

		out := h.svc.Embed(ctx, n.ID)
		assert.True(t, out.OK)
		assert.Equal(t, store.PointKey(n.ID), out.Ref)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, out.Vector)
		assert.Equal(t, []string{"content used when summary is empty"}, h.embedder.calls())
	})

	t.Run("empty vector", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		h.embedder.vector = nil
		n := h.seed(t, store.NodeKindSemantic, "fact")

		out := h.svc.Embed(ctx, n.ID)
		assert.False(t, out.OK)
		_, ok := h.index.point(store.PointKey(n.ID))
		assert.False(t, ok)
	})

	t.Run("index failure leaves node unlinked", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		h.index.upsertErr = errors.New("qdrant unreachable")
		n := h.seed(t, store.NodeKindSemantic, "fact")

		out := h.svc.Embed(ctx, n.ID)
		assert.False(t, out.OK)
		got, err := h.svc.GetNode(ctx, n.ID)
		require.NoError(t, err)
		assert.False(t, got.Embedded())
		assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.ExternalFailures.WithLabelValues("vector")), 0)
	})

	t.Run("missing node", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		out := h.svc.Embed(ctx, 9999)
		assert.False(t, out.OK)
		assert.Empty(t, h.embedder.calls())
	})
}

func TestService_ScheduleExtract(t *testing.T) {
	h := newHarness(t, harnessOpts{noEmbedding: true})
	ctx := context.Background()

	_, err := h.svc.ScheduleExtract(ctx, 9999)
	assert.True(t, palaiserr.IsNotFound(err))

	h.completer.reply = `[{"subject":"api","relation":"runs_on","object":"pool b"}]`
	n := h.seed(t, store.NodeKindEpisodic, "api moved to pool b")
	taskID, err := h.svc.ScheduleExtract(ctx, n.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)
	h.svc.Wait()

	r, err := h.svc.Recall(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, r.Edges, 1)
	assert.Equal(t, store.RelationLearnedFrom, r.Edges[0].Relation)
}
