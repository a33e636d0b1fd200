// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"context"
	"time"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Pipeline stage names used in logs and metrics.
const (
	stageEmbed   = "embed"
	stageEnrich  = "enrich"
	stageExtract = "extract"
	stageIngest  = "ingest"
)

// EmbeddingOutcome is the result of embedding one node. OK is false when
// any step failed; Vector is only meaningful when OK is true.
type EmbeddingOutcome struct {
	Vector []float32
	Ref    string
	OK     bool
}

// Embed embeds a node's summary (or content), upserts it into the vector
// index under node-<id> and records the reference on the node. Failures
// are logged and reported as a non-OK outcome, never as an error.
func (s *Service) Embed(ctx context.Context, id int64) EmbeddingOutcome {
	out, err := s.embed(ctx, id)
	if err != nil {
		s.logStageFailure(stageEmbed, id, err)
	}
	return out
}

func (s *Service) embed(ctx context.Context, id int64) (EmbeddingOutcome, error) {
	if !s.embeddingEnabled() {
		return EmbeddingOutcome{}, palaiserr.New(palaiserr.CodeMemoryEmbeddingOff,
			"embedding is not configured", palaiserr.FieldNodeID(id))
	}

	n, err := s.graph.GetNode(ctx, id)
	if err != nil {
		return EmbeddingOutcome{}, err
	}

	callCtx, cancel := s.callContext(ctx)
	vec, err := s.embedder.Embed(callCtx, n.EmbeddingText())
	cancel()
	if err != nil {
		s.metrics.ExternalFailures.WithLabelValues(serviceEmbedding).Inc()
		return EmbeddingOutcome{}, err
	}
	if len(vec) == 0 {
		s.metrics.ExternalFailures.WithLabelValues(serviceEmbedding).Inc()
		return EmbeddingOutcome{}, palaiserr.New(palaiserr.CodeProviderResponseInvalid,
			"embedding is empty", palaiserr.FieldNodeID(id))
	}

	key := store.PointKey(id)
	callCtx, cancel = s.callContext(ctx)
	err = s.vectors.Upsert(callCtx, store.Point{Key: key, Vector: vec, Payload: pointPayload(n)})
	cancel()
	if err != nil {
		s.metrics.ExternalFailures.WithLabelValues(serviceVector).Inc()
		return EmbeddingOutcome{}, err
	}

	// From here the point exists. If linking fails the node stays
	// embedded-but-unlinked until Reembed runs.
	if err := s.graph.SetEmbeddingRef(ctx, id, key); err != nil {
		return EmbeddingOutcome{}, palaiserr.With(err, palaiserr.Field("embedding_ref", key))
	}

	s.logger.Debug("memory node embedded", "node_id", id, "embedding_ref", key, "dimensions", len(vec))
	return EmbeddingOutcome{Vector: vec, Ref: key, OK: true}, nil
}

// pointPayload is the metadata stored alongside a node's vector.
func pointPayload(n *store.Node) map[string]any {
	payload := map[string]any{
		"nodeId":    n.ID,
		"kind":      string(n.Kind),
		"tags":      n.Tags,
		"createdAt": n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.EntityType != "" {
		payload["entityType"] = string(n.EntityType)
	}
	if n.EntityID != "" {
		payload["entityId"] = n.EntityID
	}
	return payload
}
