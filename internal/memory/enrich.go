// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"context"
	"math"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Enrich links a freshly embedded node to its nearest existing neighbors
// with related_to edges and returns how many edges it created. Hits that
// do not resolve to another live node, or that are already linked, are
// skipped. Running it twice against the same index creates nothing new.
func (s *Service) Enrich(ctx context.Context, id int64, vector []float32) int {
	created, err := s.enrich(ctx, id, vector)
	if err != nil {
		s.logStageFailure(stageEnrich, id, err)
	}
	return created
}

func (s *Service) enrich(ctx context.Context, id int64, vector []float32) (int, error) {
	if s.vectors == nil || len(vector) == 0 {
		return 0, nil
	}

	k := s.cfg.EnrichNeighbors
	callCtx, cancel := s.callContext(ctx)
	hits, err := s.vectors.Search(callCtx, store.VectorQuery{
		Vector:         vector,
		Limit:          k + 1,
		ScoreThreshold: s.cfg.EnrichThreshold,
	})
	cancel()
	if err != nil {
		s.metrics.ExternalFailures.WithLabelValues(serviceVector).Inc()
		return 0, err
	}

	created, candidates := 0, 0
	for _, hit := range hits {
		if candidates == k {
			break
		}
		target, ok := store.ParsePointKey(hit.Key)
		if !ok || target == id {
			continue
		}
		candidates++

		if _, err := s.graph.GetNode(ctx, target); err != nil {
			if palaiserr.IsNotFound(err) {
				// Stale index entry.
				continue
			}
			return created, err
		}

		exists, err := s.graph.HasEdge(ctx, id, target, store.RelationRelatedTo)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		err = s.insertEdge(ctx, &store.Edge{
			SourceNodeID: id,
			TargetNodeID: target,
			Relation:     store.RelationRelatedTo,
			Weight:       roundWeight(hit.Score),
		})
		switch {
		case palaiserr.IsConflict(err):
			// Lost a race with a concurrent enrichment of the same pair.
			continue
		case palaiserr.IsNotFound(err):
			continue
		case err != nil:
			return created, err
		}
		created++
	}

	if created > 0 {
		s.logger.Debug("memory node enriched", "node_id", id, "edges_created", created)
	}
	return created, nil
}

// roundWeight rounds a similarity to two decimals within [0, 1].
func roundWeight(score float64) float64 {
	w := math.Round(score*100) / 100
	return math.Min(1, math.Max(0, w))
}
