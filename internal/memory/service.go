// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package memory implements the agent memory knowledge graph: node and
// edge writes against the graph store, and the background pipelines that
// embed nodes, link similar ones, and distil facts from observations.
//
// The graph store is the source of truth. The vector index is a derived
// secondary index; every hit read from it is re-validated against the
// store before use.
package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Deps are the collaborators of a Service. Graph is required. Without
// Vectors or Embedder no embedding or enrichment happens; without
// Completer extraction is a no-op.
type Deps struct {
	Graph    store.GraphStore
	Vectors  store.VectorIndex
	Embedder provider.Embedder
	// QueryEmbedder embeds search queries. Defaults to Embedder.
	QueryEmbedder provider.Embedder
	Completer     provider.Completer
	// Redactor masks credentials in node text before it is stored. Nil
	// stores text as given.
	Redactor Redactor
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Redactor masks credentials in text. It returns the masked text and the
// names of the rules that fired; text without credentials comes back
// unchanged with no rules.
type Redactor interface {
	Redact(text string) (string, []string)
}

// Service is the entry point to the memory graph.
type Service struct {
	graph         store.GraphStore
	vectors       store.VectorIndex
	embedder      provider.Embedder
	queryEmbedder provider.Embedder
	completer     provider.Completer
	redactor      Redactor

	cfg     Config
	tasks   *Dispatcher
	metrics *Metrics
	logger  *slog.Logger
}

// NewService wires a Service and starts its background workers.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Graph == nil {
		return nil, palaiserr.New(palaiserr.CodeConfigValidateInvalidValue, "memory service requires a graph store")
	}
	cfg = cfg.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "memory")

	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	queryEmbedder := deps.QueryEmbedder
	if queryEmbedder == nil {
		queryEmbedder = deps.Embedder
	}

	return &Service{
		graph:         deps.Graph,
		vectors:       deps.Vectors,
		embedder:      deps.Embedder,
		queryEmbedder: queryEmbedder,
		completer:     deps.Completer,
		redactor:      deps.Redactor,
		cfg:           cfg,
		tasks:         NewDispatcher(cfg.Workers, cfg.QueueSize, cfg.TaskTimeout, logger, metrics),
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Metrics returns the collectors updated by the service.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Wait blocks until all background work scheduled so far has finished.
func (s *Service) Wait() { s.tasks.Wait() }

// Close drains background work. It does not close the stores.
func (s *Service) Close() { s.tasks.Close() }

// CreateNode validates and persists a node, then schedules embedding and
// enrichment (and extraction for episodic nodes when AutoExtract is on).
// The returned node has no embedding reference yet.
func (s *Service) CreateNode(ctx context.Context, in NodeInput) (*store.Node, error) {
	if err := validateInput(in, palaiserr.CodeMemoryNodeInvalid); err != nil {
		return nil, err
	}

	n := &store.Node{
		Kind:       in.Kind,
		Content:    in.Content,
		Summary:    in.Summary,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Tags:       in.Tags,
		Metadata:   in.Metadata,
		CreatedBy:  in.CreatedBy,
		ValidFrom:  in.ValidFrom,
		ValidUntil: in.ValidUntil,
	}
	if err := s.insertNode(ctx, n); err != nil {
		return nil, err
	}

	if s.embeddingEnabled() {
		s.scheduleEmbed(n.ID)
	}
	if s.cfg.AutoExtract && n.Kind == store.NodeKindEpisodic {
		s.scheduleExtract(n.ID)
	}
	return n, nil
}

func (s *Service) insertNode(ctx context.Context, n *store.Node) error {
	if n.CreatedBy == "" {
		n.CreatedBy = store.CreatorSystem
	}
	s.redact(n)
	if err := s.graph.CreateNode(ctx, n); err != nil {
		return err
	}
	s.metrics.NodesCreated.WithLabelValues(string(n.Kind)).Inc()
	return nil
}

// redact masks credentials in the node's content and summary.
func (s *Service) redact(n *store.Node) {
	if s.redactor == nil {
		return
	}
	var fired []string
	for _, field := range []*string{&n.Content, &n.Summary} {
		masked, rules := s.redactor.Redact(*field)
		*field = masked
		fired = append(fired, rules...)
	}
	if len(fired) == 0 {
		return
	}
	for _, rule := range fired {
		s.metrics.Redactions.WithLabelValues(rule).Inc()
	}
	s.logger.Warn("credentials redacted from memory node",
		"kind", n.Kind, "entity_type", n.EntityType, "rules", fired)
}

func (s *Service) insertEdge(ctx context.Context, e *store.Edge) error {
	if err := s.graph.CreateEdge(ctx, e); err != nil {
		return err
	}
	s.metrics.EdgesCreated.WithLabelValues(string(e.Relation)).Inc()
	return nil
}

// GetNode returns a node or a not-found error.
func (s *Service) GetNode(ctx context.Context, id int64) (*store.Node, error) {
	return s.graph.GetNode(ctx, id)
}

// ListNodes returns nodes newest first.
func (s *Service) ListNodes(ctx context.Context, in ListInput) ([]*store.Node, error) {
	if err := validateInput(in, palaiserr.CodeMemoryNodeInvalid); err != nil {
		return nil, err
	}
	return s.graph.ListNodes(ctx, store.NodeFilter{
		Kind:       in.Kind,
		EntityType: in.EntityType,
		Limit:      clampLimit(in.Limit, defaultListLimit),
	})
}

// CreateEdge adds an explicit edge. Self-loops are rejected for every
// relation; a duplicate related_to edge is a conflict.
func (s *Service) CreateEdge(ctx context.Context, in EdgeInput) (*store.Edge, error) {
	if in.SourceNodeID != 0 && in.SourceNodeID == in.TargetNodeID {
		return nil, palaiserr.New(palaiserr.CodeMemoryEdgeSelfLoop, "edge source and target must differ",
			palaiserr.FieldNodeID(in.SourceNodeID), palaiserr.FieldRelation(string(in.Relation)))
	}
	if err := validateInput(in, palaiserr.CodeMemoryEdgeInvalid); err != nil {
		return nil, err
	}

	weight := 1.0
	if in.Weight != nil {
		weight = *in.Weight
	}
	e := &store.Edge{
		SourceNodeID: in.SourceNodeID,
		TargetNodeID: in.TargetNodeID,
		Relation:     in.Relation,
		Weight:       weight,
	}
	if err := s.insertEdge(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Recall is a node with every edge touching it.
type Recall struct {
	Node  *store.Node   `json:"node"`
	Edges []*store.Edge `json:"edges"`
}

// Recall returns a node and its depth-1 edges in both directions.
func (s *Service) Recall(ctx context.Context, id int64) (*Recall, error) {
	n, err := s.graph.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	edges, err := s.graph.EdgesTouching(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Recall{Node: n, Edges: edges}, nil
}

// NodeSummary is the short form of a node used in neighborhoods.
type NodeSummary struct {
	ID         int64            `json:"id"`
	Kind       store.NodeKind   `json:"kind"`
	Summary    string           `json:"summary,omitempty"`
	Content    string           `json:"content"`
	EntityType store.EntityType `json:"entityType,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Neighborhood is a node, its edges and summaries of the nodes at the
// other end of them.
type Neighborhood struct {
	Node      *store.Node   `json:"node"`
	Edges     []*store.Edge `json:"edges"`
	Connected []NodeSummary `json:"connected"`
}

// Graph returns the depth-1 neighborhood of a node. Connected nodes are
// listed in first-seen edge order; dangling endpoints are skipped.
func (s *Service) Graph(ctx context.Context, id int64) (*Neighborhood, error) {
	r, err := s.Recall(ctx, id)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, e := range r.Edges {
		for _, other := range []int64{e.SourceNodeID, e.TargetNodeID} {
			if other == id {
				continue
			}
			if _, ok := seen[other]; ok {
				continue
			}
			seen[other] = struct{}{}
			ids = append(ids, other)
		}
	}

	connected := make([]NodeSummary, 0, len(ids))
	if len(ids) > 0 {
		nodes, err := s.graph.GetNodes(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			connected = append(connected, NodeSummary{
				ID:         n.ID,
				Kind:       n.Kind,
				Summary:    n.Summary,
				Content:    n.Content,
				EntityType: n.EntityType,
				CreatedAt:  n.CreatedAt,
			})
		}
	}
	return &Neighborhood{Node: r.Node, Edges: r.Edges, Connected: connected}, nil
}

// Reembed schedules embedding and enrichment for an existing node. It heals
// nodes whose embedding failed or was never linked.
func (s *Service) Reembed(ctx context.Context, id int64) (string, error) {
	if _, err := s.graph.GetNode(ctx, id); err != nil {
		return "", err
	}
	if !s.embeddingEnabled() {
		return "", palaiserr.New(palaiserr.CodeMemoryEmbeddingOff, "embedding is not configured", palaiserr.FieldNodeID(id))
	}
	taskID, ok := s.scheduleEmbed(id)
	if !ok {
		return taskID, palaiserr.New(palaiserr.CodeMemoryTaskQueueFull, "background queue is full", palaiserr.FieldNodeID(id))
	}
	return taskID, nil
}

// ScheduleExtract schedules extraction for a node. Non-episodic nodes are
// accepted and skipped by the pipeline.
func (s *Service) ScheduleExtract(ctx context.Context, id int64) (string, error) {
	if _, err := s.graph.GetNode(ctx, id); err != nil {
		return "", err
	}
	taskID, ok := s.scheduleExtract(id)
	if !ok {
		return taskID, palaiserr.New(palaiserr.CodeMemoryTaskQueueFull, "background queue is full", palaiserr.FieldNodeID(id))
	}
	return taskID, nil
}

// callContext derives the deadline for one external call.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}

func (s *Service) embeddingEnabled() bool {
	return s.embedder != nil && s.vectors != nil
}

func (s *Service) scheduleEmbed(id int64) (string, bool) {
	return s.tasks.Go(stageEmbed, func(ctx context.Context) error {
		out, err := s.embed(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.enrich(ctx, id, out.Vector)
		return err
	})
}

func (s *Service) scheduleExtract(id int64) (string, bool) {
	return s.tasks.Go(stageExtract, func(ctx context.Context) error {
		_, err := s.extract(ctx, id)
		return err
	})
}

// logStageFailure records a swallowed background failure.
func (s *Service) logStageFailure(stage string, id int64, err error) {
	s.logger.Warn("memory pipeline stage failed",
		"stage", stage,
		"node_id", id,
		"error", err)
}
