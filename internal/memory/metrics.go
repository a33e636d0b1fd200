// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Task outcomes recorded on palais_memory_tasks_total.
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomePanic   = "panic"
	outcomeDropped = "dropped"
)

// External services recorded on palais_memory_external_failures_total.
const (
	serviceEmbedding  = "embedding"
	serviceCompletion = "completion"
	serviceVector     = "vector"
)

// Metrics holds the memory subsystem's Prometheus collectors. Each
// instance owns its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	NodesCreated     *prometheus.CounterVec
	EdgesCreated     *prometheus.CounterVec
	Tasks            *prometheus.CounterVec
	TasksDropped     prometheus.Counter
	TaskDuration     *prometheus.HistogramVec
	ExternalFailures *prometheus.CounterVec
	SearchResults    *prometheus.CounterVec
	Redactions       *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	const ns, sub = "palais", "memory"

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NodesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "nodes_created_total",
			Help: "Memory nodes created, by kind.",
		}, []string{"kind"}),
		EdgesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "edges_created_total",
			Help: "Memory edges created, by relation.",
		}, []string{"relation"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "tasks_total",
			Help: "Background tasks finished, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		TasksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "tasks_dropped_total",
			Help: "Background tasks dropped because the queue was full or closed.",
		}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "task_duration_seconds",
			Help:    "Background task duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ExternalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "external_failures_total",
			Help: "Failed calls to embedding, completion or vector services.",
		}, []string{"service"}),
		SearchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "search_results_total",
			Help: "Nodes returned by hybrid search, by the half that found them.",
		}, []string{"source"}),
		Redactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "redactions_total",
			Help: "Credentials masked in node text before storage, by rule.",
		}, []string{"rule"}),
	}

	m.registry.MustRegister(
		m.NodesCreated,
		m.EdgesCreated,
		m.Tasks,
		m.TasksDropped,
		m.TaskDuration,
		m.ExternalFailures,
		m.SearchResults,
		m.Redactions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
