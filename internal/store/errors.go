// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package store

import (
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// NodeNotFound returns the error reported when a node id does not exist.
func NodeNotFound(id int64) error {
	return palaiserr.New(palaiserr.CodeStoreNodeNotFound, "memory node not found", palaiserr.FieldNodeID(id))
}

// EdgeConflict returns the error reported when a related_to edge already
// exists between two nodes.
func EdgeConflict(source, target int64, rel Relation) error {
	return palaiserr.New(palaiserr.CodeStoreEdgeConflict, "edge already exists",
		palaiserr.Field("source_node_id", source),
		palaiserr.Field("target_node_id", target),
		palaiserr.FieldRelation(string(rel)),
	)
}
