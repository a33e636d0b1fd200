// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/palais-dev/palais/internal/memory"
	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// MemoryService is the memory graph as seen by the HTTP and MCP surfaces.
// *memory.Service implements it.
type MemoryService interface {
	CreateNode(ctx context.Context, in memory.NodeInput) (*store.Node, error)
	GetNode(ctx context.Context, id int64) (*store.Node, error)
	ListNodes(ctx context.Context, in memory.ListInput) ([]*store.Node, error)
	CreateEdge(ctx context.Context, in memory.EdgeInput) (*store.Edge, error)
	Recall(ctx context.Context, id int64) (*memory.Recall, error)
	Graph(ctx context.Context, id int64) (*memory.Neighborhood, error)
	Search(ctx context.Context, in memory.SearchInput) ([]*store.Node, error)
	Reembed(ctx context.Context, id int64) (string, error)
	ScheduleExtract(ctx context.Context, id int64) (string, error)
	IngestEvent(ctx context.Context, ev memory.Event) *store.Node
}

// ProviderService reports the health of configured AI providers.
// *provider.Registry implements it.
type ProviderService interface {
	Statuses(ctx context.Context) []provider.Status
}

// Services holds dependencies injected into route handlers.
type Services struct {
	memory    MemoryService
	providers ProviderService    // optional; nil reports no providers
	gatherer  prometheus.Gatherer // optional; nil disables /metrics
}

// NewServices creates a Services instance. The memory service is required.
func NewServices(mem MemoryService, providers ProviderService, gatherer prometheus.Gatherer) (*Services, error) {
	if mem == nil {
		return nil, palaiserr.New(palaiserr.CodeServerConfigInvalid, "memory service is required")
	}
	return &Services{
		memory:    mem,
		providers: providers,
		gatherer:  gatherer,
	}, nil
}

// Memory returns the memory service.
func (s *Services) Memory() MemoryService {
	return s.memory
}

// Providers returns the provider status service, or nil.
func (s *Services) Providers() ProviderService {
	return s.providers
}

// Gatherer returns the metrics gatherer, or nil.
func (s *Services) Gatherer() prometheus.Gatherer {
	return s.gatherer
}
