// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	extractMaxTokens   = 400
	extractTemperature = 0.1
	// learnedFromWeight is the fixed weight of episodic -> semantic edges.
	learnedFromWeight = 0.9
)

const extractionPrompt = `Extract the key facts of this event as JSON triplets.
Format: [{"subject": "...", "relation": "...", "object": "..."}]
Rules: 3-5 triplets at most. Short subjects and objects (under 40 characters). Relations in snake_case.
Answer ONLY with the JSON array, without markdown.`

// Triplet is a subject-relation-object fact.
type Triplet struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// Content renders the triplet as "<subject> <relation> <object>".
func (t Triplet) Content() string {
	return t.Subject + " " + t.Relation + " " + t.Object
}

// Extract distils an episodic node into semantic fact nodes, each linked
// from the source by a learned_from edge and then embedded and enriched.
// It returns the number of semantic nodes created. Missing or
// non-episodic nodes are a no-op. An unusable model reply creates nothing
// and is not reported to the caller.
func (s *Service) Extract(ctx context.Context, id int64) int {
	created, err := s.extract(ctx, id)
	if err != nil {
		s.logStageFailure(stageExtract, id, err)
	}
	return created
}

func (s *Service) extract(ctx context.Context, id int64) (int, error) {
	source, err := s.graph.GetNode(ctx, id)
	if err != nil {
		if palaiserr.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if source.Kind != store.NodeKindEpisodic {
		return 0, nil
	}
	if s.completer == nil {
		s.logger.Debug("memory extraction skipped, no completer configured", "node_id", id)
		return 0, nil
	}

	callCtx, cancel := s.callContext(ctx)
	reply, err := s.completer.Complete(callCtx, provider.CompletionRequest{
		Model:       s.cfg.ExtractionModel,
		System:      extractionPrompt,
		Prompt:      truncateRunes(source.Content, s.cfg.ExtractWindow),
		MaxTokens:   extractMaxTokens,
		Temperature: extractTemperature,
	})
	cancel()
	if err != nil {
		s.metrics.ExternalFailures.WithLabelValues(serviceCompletion).Inc()
		return 0, err
	}

	triplets, err := parseTriplets(reply, s.cfg.MaxTriplets)
	if err != nil {
		s.metrics.ExternalFailures.WithLabelValues(serviceCompletion).Inc()
		return 0, palaiserr.With(err, palaiserr.FieldNodeID(id))
	}

	created := 0
	for _, t := range triplets {
		content := t.Content()
		fact := &store.Node{
			Kind:      store.NodeKindSemantic,
			Content:   content,
			Summary:   content,
			Tags:      []string{t.Relation},
			CreatedBy: store.CreatorAgent,
		}
		if err := s.insertNode(ctx, fact); err != nil {
			return created, err
		}
		if err := s.insertEdge(ctx, &store.Edge{
			SourceNodeID: id,
			TargetNodeID: fact.ID,
			Relation:     store.RelationLearnedFrom,
			Weight:       learnedFromWeight,
		}); err != nil {
			return created, err
		}
		created++

		if !s.embeddingEnabled() {
			continue
		}
		out, err := s.embed(ctx, fact.ID)
		if err != nil {
			s.logStageFailure(stageEmbed, fact.ID, err)
			continue
		}
		if _, err := s.enrich(ctx, fact.ID, out.Vector); err != nil {
			s.logStageFailure(stageEnrich, fact.ID, err)
		}
	}

	s.logger.Info("memory facts extracted", "node_id", id, "facts_created", created)
	return created, nil
}

// parseTriplets decodes a model reply into at most limit complete
// triplets. Markdown code fences are stripped first. A reply that is not
// a JSON array is an error; array elements that are not complete string
// triplets are skipped.
func parseTriplets(reply string, limit int) ([]Triplet, error) {
	cleaned := stripCodeFences(reply)
	if !strings.HasPrefix(cleaned, "[") {
		return nil, palaiserr.New(palaiserr.CodeMemoryExtractInvalid, "extraction reply is not a JSON array")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeMemoryExtractInvalid, "extraction reply is not a JSON array")
	}

	if len(raw) > limit {
		raw = raw[:limit]
	}
	triplets := make([]Triplet, 0, len(raw))
	for _, elem := range raw {
		var t Triplet
		if err := json.Unmarshal(elem, &t); err != nil {
			continue
		}
		t.Subject = strings.TrimSpace(t.Subject)
		t.Relation = strings.TrimSpace(t.Relation)
		t.Object = strings.TrimSpace(t.Object)
		if t.Subject == "" || t.Relation == "" || t.Object == "" {
			continue
		}
		triplets = append(triplets, t)
	}
	return triplets, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json\n", "")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```\n", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// truncateRunes returns at most n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
