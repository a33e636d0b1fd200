// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"context"
	"strings"

	"github.com/palais-dev/palais/internal/store"
)

const (
	ingestAfterWindow  = 500
	ingestBeforeWindow = 200
)

// importantActions are the domain events worth remembering.
var importantActions = map[string]struct{}{
	"task.completed":     {},
	"task.failed":        {},
	"task.created":       {},
	"error":              {},
	"deployment":         {},
	"deployment.success": {},
	"deployment.failed":  {},
	"agent.error":        {},
	"agent.completed":    {},
	"mission.completed":  {},
	"mission.failed":     {},
}

// Event is a domain mutation reported by the surrounding system.
type Event struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Action     string `json:"action"`
	ActorID    string `json:"actorId,omitempty"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
}

// Important reports whether the event's action is on the allow-list.
func (e Event) Important() bool {
	_, ok := importantActions[e.Action]
	return ok
}

// Summary is the one-line description of the event.
func (e Event) Summary() string {
	s := e.Action + " on " + e.EntityType + " #" + e.EntityID
	if e.ActorID != "" {
		s += " by " + e.ActorID
	}
	return s
}

// Content is the multi-line body of the episodic node.
func (e Event) Content() string {
	lines := []string{
		"Action: " + e.Action,
		"Entity: " + e.EntityType + " #" + e.EntityID,
	}
	if e.ActorID != "" {
		lines = append(lines, "Agent: "+e.ActorID)
	}
	if e.After != "" {
		lines = append(lines, "Context: "+truncateRunes(e.After, ingestAfterWindow))
	}
	if e.Before != "" {
		lines = append(lines, "Before: "+truncateRunes(e.Before, ingestBeforeWindow))
	}
	return strings.Join(lines, "\n")
}

// IngestEvent records an important event as an episodic node and schedules
// its embedding and enrichment. It never fails: unimportant events are
// dropped and errors are logged. It returns the created node, or nil.
func (s *Service) IngestEvent(ctx context.Context, ev Event) *store.Node {
	if !ev.Important() {
		s.logger.Debug("memory event ignored", "action", ev.Action, "entity_type", ev.EntityType)
		return nil
	}

	tags := []string{ev.Action}
	if ev.EntityType != "" {
		tags = append(tags, ev.EntityType)
	}
	n := &store.Node{
		Kind:       store.NodeKindEpisodic,
		Content:    ev.Content(),
		Summary:    ev.Summary(),
		EntityType: store.EntityType(ev.EntityType),
		EntityID:   ev.EntityID,
		Tags:       tags,
		CreatedBy:  store.CreatorSystem,
	}
	if err := s.insertNode(ctx, n); err != nil {
		s.logger.Warn("memory event ingestion failed",
			"stage", stageIngest,
			"action", ev.Action,
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID,
			"error", err)
		return nil
	}

	if s.embeddingEnabled() {
		s.scheduleEmbed(n.ID)
	}
	if s.cfg.AutoExtract {
		s.scheduleExtract(n.ID)
	}
	return n
}
