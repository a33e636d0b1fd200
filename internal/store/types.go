// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package store

import (
	"strconv"
	"strings"
	"time"
)

// NodeKind classifies what a memory node records.
type NodeKind string

const (
	NodeKindEpisodic   NodeKind = "episodic"
	NodeKindSemantic   NodeKind = "semantic"
	NodeKindProcedural NodeKind = "procedural"
)

// Valid reports whether the kind is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindEpisodic, NodeKindSemantic, NodeKindProcedural:
		return true
	default:
		return false
	}
}

// EntityType names the domain object a node is softly linked to. Values
// outside the known set are accepted so that ingested events for other
// entity kinds (missions, projects) keep their origin.
type EntityType string

const (
	EntityTypeAgent      EntityType = "agent"
	EntityTypeService    EntityType = "service"
	EntityTypeTask       EntityType = "task"
	EntityTypeError      EntityType = "error"
	EntityTypeDeployment EntityType = "deployment"
	EntityTypeDecision   EntityType = "decision"
)

// Known reports whether the entity type is one of the built-in types.
func (e EntityType) Known() bool {
	switch e {
	case EntityTypeAgent, EntityTypeService, EntityTypeTask, EntityTypeError, EntityTypeDeployment, EntityTypeDecision:
		return true
	default:
		return false
	}
}

// Relation is the type of a directed edge between two nodes.
type Relation string

const (
	RelationCausedBy    Relation = "caused_by"
	RelationResolvedBy  Relation = "resolved_by"
	RelationRelatedTo   Relation = "related_to"
	RelationLearnedFrom Relation = "learned_from"
	RelationSupersedes  Relation = "supersedes"
)

// Valid reports whether the relation is one of the known edge relations.
func (r Relation) Valid() bool {
	switch r {
	case RelationCausedBy, RelationResolvedBy, RelationRelatedTo, RelationLearnedFrom, RelationSupersedes:
		return true
	default:
		return false
	}
}

// Creator records the provenance of a node.
type Creator string

const (
	CreatorUser   Creator = "user"
	CreatorAgent  Creator = "agent"
	CreatorSystem Creator = "system"
)

// Valid reports whether the creator is a known provenance value.
func (c Creator) Valid() bool {
	switch c {
	case CreatorUser, CreatorAgent, CreatorSystem:
		return true
	default:
		return false
	}
}

// Node is a unit of recorded knowledge. Kind, Content, CreatedAt and
// CreatedBy never change after creation; EmbeddingRef is the only field
// written later.
type Node struct {
	ID           int64          `json:"id"`
	Kind         NodeKind       `json:"kind"`
	Content      string         `json:"content"`
	Summary      string         `json:"summary,omitempty"`
	EntityType   EntityType     `json:"entityType,omitempty"`
	EntityID     string         `json:"entityId,omitempty"`
	Tags         []string       `json:"tags"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	EmbeddingRef string         `json:"embeddingRef"`
	// ValidFrom and ValidUntil are stored but not interpreted.
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidUntil *time.Time `json:"validUntil,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	CreatedBy  Creator    `json:"createdBy"`
}

// EmbeddingText returns the text sent to the embedding model: the summary
// when present, otherwise the full content.
func (n *Node) EmbeddingText() string {
	if n.Summary != "" {
		return n.Summary
	}
	return n.Content
}

// Embedded reports whether the node has been linked to a vector index point.
func (n *Node) Embedded() bool {
	return n.EmbeddingRef != ""
}

// Edge is a directed, typed relationship between two nodes. Edges are
// append-only.
type Edge struct {
	ID           int64     `json:"id"`
	SourceNodeID int64     `json:"sourceNodeId"`
	TargetNodeID int64     `json:"targetNodeId"`
	Relation     Relation  `json:"relation"`
	Weight       float64   `json:"weight"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NodeFilter narrows ListNodes results.
type NodeFilter struct {
	Kind       NodeKind
	EntityType EntityType
	Limit      int
}

// TextSearchOpts controls lexical search.
type TextSearchOpts struct {
	Limit      int
	EntityType EntityType
}

const pointKeyPrefix = "node-"

// PointKey returns the vector index key for a node id.
func PointKey(nodeID int64) string {
	return pointKeyPrefix + strconv.FormatInt(nodeID, 10)
}

// ParsePointKey resolves a vector index key back to a node id.
func ParsePointKey(key string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, pointKeyPrefix)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
