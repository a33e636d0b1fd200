// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"context"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Search runs hybrid search: vector hits first in similarity order, then
// full-text hits not already included, truncated to the limit. When the
// query cannot be embedded or the index is unreachable the result is
// lexical only. Graph store failures are returned.
func (s *Service) Search(ctx context.Context, in SearchInput) ([]*store.Node, error) {
	if err := validateInput(in, palaiserr.CodeMemorySearchInvalid); err != nil {
		return nil, err
	}
	limit := clampLimit(in.Limit, defaultSearchLimit)

	semantic, err := s.vectorCandidates(ctx, in.Query, limit, in.EntityType)
	if err != nil {
		return nil, err
	}

	lexical, err := s.graph.SearchText(ctx, in.Query, store.TextSearchOpts{
		Limit:      limit,
		EntityType: in.EntityType,
	})
	if err != nil {
		return nil, err
	}

	merged := mergeResults(semantic, lexical, limit)
	fromVector := min(len(semantic), len(merged))
	s.metrics.SearchResults.WithLabelValues("vector").Add(float64(fromVector))
	s.metrics.SearchResults.WithLabelValues("lexical").Add(float64(len(merged) - fromVector))
	return merged, nil
}

// vectorCandidates returns the live nodes behind the top vector hits for
// query. Embedding or index failures yield no candidates and no error.
func (s *Service) vectorCandidates(ctx context.Context, query string, limit int, entityType store.EntityType) ([]*store.Node, error) {
	if s.queryEmbedder == nil || s.vectors == nil {
		return nil, nil
	}

	callCtx, cancel := s.callContext(ctx)
	vec, err := s.queryEmbedder.Embed(callCtx, query)
	cancel()
	if err != nil || len(vec) == 0 {
		s.metrics.ExternalFailures.WithLabelValues(serviceEmbedding).Inc()
		s.logger.Warn("memory search falling back to lexical", "stage", "search_embed", "error", err)
		return nil, nil
	}

	callCtx, cancel = s.callContext(ctx)
	hits, err := s.vectors.Search(callCtx, store.VectorQuery{Vector: vec, Limit: limit})
	cancel()
	if err != nil {
		s.metrics.ExternalFailures.WithLabelValues(serviceVector).Inc()
		s.logger.Warn("memory search falling back to lexical", "stage", "search_vector", "error", err)
		return nil, nil
	}

	ids := make([]int64, 0, len(hits))
	for _, hit := range hits {
		if id, ok := store.ParsePointKey(hit.Key); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	nodes, err := s.graph.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	if entityType == "" {
		return nodes, nil
	}
	filtered := nodes[:0]
	for _, n := range nodes {
		if n.EntityType == entityType {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

// mergeResults appends lexical nodes not already present in semantic and
// truncates to limit.
func mergeResults(semantic, lexical []*store.Node, limit int) []*store.Node {
	out := make([]*store.Node, 0, min(limit, len(semantic)+len(lexical)))
	seen := make(map[int64]struct{}, len(semantic)+len(lexical))
	for _, list := range [][]*store.Node{semantic, lexical} {
		for _, n := range list {
			if len(out) == limit {
				return out
			}
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
