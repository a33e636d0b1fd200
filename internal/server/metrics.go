// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerMetricsRoute exposes the Prometheus gatherer at /metrics. The
// route is plain chi since the exposition format is not JSON.
func (s *Server) registerMetricsRoute() {
	g := s.services.Gatherer()
	if g == nil {
		return
	}
	s.router.Method("GET", "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
