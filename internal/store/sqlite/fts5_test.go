// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

//go:build sqlite_fts5

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/store"
)

func TestGraphStore_SearchTextRanked(t *testing.T) {
	ctx := context.Background()
	gs := newTestGraph(t)
	require.True(t, gs.FullText())

	dense := createNode(t, gs, store.NodeKindEpisodic, "timeout timeout timeout")
	sparse := createNode(t, gs, store.NodeKindEpisodic, "the billing worker hit a timeout while draining its queue of pending jobs")

	got, err := gs.SearchText(ctx, "timeout", store.TextSearchOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Relevance wins over recency.
	assert.Equal(t, []int64{dense.ID, sparse.ID}, []int64{got[0].ID, got[1].ID})
}
