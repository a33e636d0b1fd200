// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package store

import "context"

// GraphStore is the relational source of truth for memory nodes and edges.
type GraphStore interface {
	// CreateNode persists n and fills in its ID and CreatedAt.
	CreateNode(ctx context.Context, n *Node) error
	GetNode(ctx context.Context, id int64) (*Node, error)
	// GetNodes returns the nodes that exist, in the order of ids.
	GetNodes(ctx context.Context, ids []int64) ([]*Node, error)
	// ListNodes returns nodes newest first.
	ListNodes(ctx context.Context, filter NodeFilter) ([]*Node, error)
	SetEmbeddingRef(ctx context.Context, id int64, ref string) error

	// CreateEdge persists e and fills in its ID and CreatedAt. A related_to
	// edge that duplicates an existing one fails with a conflict error; the
	// check is atomic in the store.
	CreateEdge(ctx context.Context, e *Edge) error
	HasEdge(ctx context.Context, source, target int64, rel Relation) (bool, error)
	// EdgesTouching returns every edge with id as source or target.
	EdgesTouching(ctx context.Context, id int64) ([]*Edge, error)

	// SearchText runs a full-text match of query against node content.
	SearchText(ctx context.Context, query string, opts TextSearchOpts) ([]*Node, error)

	Close() error
}
