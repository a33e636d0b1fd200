// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const memoryPrefix = "/api/v1/memory"

func (s *Server) registerMemoryRoutes() {
	// Request bodies are validated by the memory service so that every
	// validation failure carries the same coded error and status.
	huma.Register(s.api, huma.Operation{
		OperationID:      "create-memory-node",
		Method:           http.MethodPost,
		Path:             memoryPrefix + "/nodes",
		Summary:          "Create a memory node",
		Description:      "Persists the node and schedules embedding and enrichment in the background. The returned node has no embedding reference yet.",
		Tags:             []string{"memory"},
		DefaultStatus:    http.StatusCreated,
		SkipValidateBody: true,
		Errors:           []int{http.StatusBadRequest},
	}, s.handleCreateNode)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-memory-nodes",
		Method:      http.MethodGet,
		Path:        memoryPrefix + "/nodes",
		Summary:     "List memory nodes, newest first",
		Tags:        []string{"memory"},
		Errors:      []int{http.StatusBadRequest},
	}, s.handleListNodes)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-memory-node",
		Method:      http.MethodGet,
		Path:        memoryPrefix + "/nodes/{id}",
		Summary:     "Get a node with its edges and connected nodes",
		Tags:        []string{"memory"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleGetNode)

	huma.Register(s.api, huma.Operation{
		OperationID:   "extract-memory-node",
		Method:        http.MethodPost,
		Path:          memoryPrefix + "/nodes/{id}/extract",
		Summary:       "Schedule fact extraction for an episodic node",
		Tags:          []string{"memory"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, s.handleExtract)

	huma.Register(s.api, huma.Operation{
		OperationID:   "reembed-memory-node",
		Method:        http.MethodPost,
		Path:          memoryPrefix + "/nodes/{id}/reembed",
		Summary:       "Schedule embedding and enrichment for a node",
		Tags:          []string{"memory"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound, http.StatusServiceUnavailable},
	}, s.handleReembed)

	huma.Register(s.api, huma.Operation{
		OperationID:      "create-memory-edge",
		Method:           http.MethodPost,
		Path:             memoryPrefix + "/edges",
		Summary:          "Create an edge between two nodes",
		Tags:             []string{"memory"},
		DefaultStatus:    http.StatusCreated,
		SkipValidateBody: true,
		Errors:           []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, s.handleCreateEdge)

	huma.Register(s.api, huma.Operation{
		OperationID:      "search-memory",
		Method:           http.MethodPost,
		Path:             memoryPrefix + "/search",
		Summary:          "Hybrid vector and full-text search",
		Tags:             []string{"memory"},
		SkipValidateBody: true,
		Errors:           []int{http.StatusBadRequest},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "recall-memory-node",
		Method:      http.MethodGet,
		Path:        memoryPrefix + "/recall/{id}",
		Summary:     "Get a node and every edge touching it",
		Tags:        []string{"memory"},
		Errors:      []int{http.StatusNotFound},
	}, s.handleRecall)

	huma.Register(s.api, huma.Operation{
		OperationID:      "ingest-memory-event",
		Method:           http.MethodPost,
		Path:             memoryPrefix + "/events",
		Summary:          "Report a domain event for ingestion",
		Description:      "Important events become episodic nodes. Other events are accepted and ignored.",
		Tags:             []string{"memory"},
		DefaultStatus:    http.StatusAccepted,
		SkipValidateBody: true,
	}, s.handleIngestEvent)

	huma.Register(s.api, huma.Operation{
		OperationID: "memory-status",
		Method:      http.MethodGet,
		Path:        memoryPrefix + "/status",
		Summary:     "Provider health",
		Tags:        []string{"system"},
	}, s.handleStatus)
}

// --- Request/Response types for huma ---

type nodeIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Memory node ID"`
}

type createNodeInput struct {
	Body memory.NodeInput
}

type nodeOutput struct {
	Body *store.Node
}

type listNodesInput struct {
	Kind       string `query:"kind" doc:"Filter by node kind"`
	EntityType string `query:"entityType" doc:"Filter by entity type"`
	Limit      int    `query:"limit" doc:"Maximum nodes to return (default 50, max 200)"`
}

type nodesOutput struct {
	Body struct {
		Nodes []*store.Node `json:"nodes"`
	}
}

type neighborhoodOutput struct {
	Body *memory.Neighborhood
}

type recallOutput struct {
	Body *memory.Recall
}

type createEdgeInput struct {
	Body memory.EdgeInput
}

type edgeOutput struct {
	Body *store.Edge
}

type searchInput struct {
	Body memory.SearchInput
}

type ingestEventInput struct {
	Body memory.Event
}

type ingestEventOutput struct {
	Body struct {
		Accepted bool        `json:"accepted" doc:"Whether the event was recorded"`
		Node     *store.Node `json:"node,omitempty"`
	}
}

type taskOutput struct {
	Body struct {
		TaskID string `json:"taskId"`
		NodeID int64  `json:"nodeId"`
		Status string `json:"status" example:"accepted"`
	}
}

type statusOutput struct {
	Body struct {
		Status    string            `json:"status" example:"ok"`
		Providers []provider.Status `json:"providers"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateNode(ctx context.Context, input *createNodeInput) (*nodeOutput, error) {
	n, err := s.services.Memory().CreateNode(ctx, input.Body)
	if err != nil {
		return nil, apiError(ctx, "creating memory node", err)
	}
	return &nodeOutput{Body: n}, nil
}

func (s *Server) handleListNodes(ctx context.Context, input *listNodesInput) (*nodesOutput, error) {
	nodes, err := s.services.Memory().ListNodes(ctx, memory.ListInput{
		Kind:       store.NodeKind(input.Kind),
		EntityType: store.EntityType(input.EntityType),
		Limit:      input.Limit,
	})
	if err != nil {
		return nil, apiError(ctx, "listing memory nodes", err)
	}
	out := &nodesOutput{}
	out.Body.Nodes = nonNil(nodes)
	return out, nil
}

func (s *Server) handleGetNode(ctx context.Context, input *nodeIDInput) (*neighborhoodOutput, error) {
	g, err := s.services.Memory().Graph(ctx, input.ID)
	if err != nil {
		return nil, apiError(ctx, "loading memory node", err)
	}
	g.Edges = nonNil(g.Edges)
	return &neighborhoodOutput{Body: g}, nil
}

func (s *Server) handleExtract(ctx context.Context, input *nodeIDInput) (*taskOutput, error) {
	taskID, err := s.services.Memory().ScheduleExtract(ctx, input.ID)
	if err != nil {
		return nil, apiError(ctx, "scheduling extraction", err)
	}
	return accepted(taskID, input.ID), nil
}

func (s *Server) handleReembed(ctx context.Context, input *nodeIDInput) (*taskOutput, error) {
	taskID, err := s.services.Memory().Reembed(ctx, input.ID)
	if err != nil {
		return nil, apiError(ctx, "scheduling embedding", err)
	}
	return accepted(taskID, input.ID), nil
}

func (s *Server) handleCreateEdge(ctx context.Context, input *createEdgeInput) (*edgeOutput, error) {
	e, err := s.services.Memory().CreateEdge(ctx, input.Body)
	if err != nil {
		return nil, apiError(ctx, "creating memory edge", err)
	}
	return &edgeOutput{Body: e}, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*nodesOutput, error) {
	nodes, err := s.services.Memory().Search(ctx, input.Body)
	if err != nil {
		return nil, apiError(ctx, "searching memory", err)
	}
	out := &nodesOutput{}
	out.Body.Nodes = nonNil(nodes)
	return out, nil
}

func (s *Server) handleRecall(ctx context.Context, input *nodeIDInput) (*recallOutput, error) {
	r, err := s.services.Memory().Recall(ctx, input.ID)
	if err != nil {
		return nil, apiError(ctx, "recalling memory node", err)
	}
	r.Edges = nonNil(r.Edges)
	return &recallOutput{Body: r}, nil
}

func (s *Server) handleIngestEvent(ctx context.Context, input *ingestEventInput) (*ingestEventOutput, error) {
	n := s.services.Memory().IngestEvent(ctx, input.Body)
	out := &ingestEventOutput{}
	out.Body.Accepted = n != nil
	out.Body.Node = n
	return out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.Providers = []provider.Status{}
	if p := s.services.Providers(); p != nil {
		out.Body.Providers = nonNil(p.Statuses(ctx))
	}
	return out, nil
}

func accepted(taskID string, nodeID int64) *taskOutput {
	out := &taskOutput{}
	out.Body.TaskID = taskID
	out.Body.NodeID = nodeID
	out.Body.Status = "accepted"
	return out
}

// apiError converts a coded error into a huma error with the matching HTTP
// status. Server-side failures are logged and their details withheld.
func apiError(ctx context.Context, action string, err error) error {
	status := palaiserr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed",
			"action", action,
			"code", palaiserr.CodeOf(err),
			"error", err)
		return huma.NewError(status, action+" failed")
	}
	return huma.NewError(status, err.Error())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
