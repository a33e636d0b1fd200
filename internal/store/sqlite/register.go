// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func init() {
	store.RegisterGraphBackend("sqlite", newGraphStore)
	store.RegisterVectorBackend("sqlite", newVectorIndex)
}

func newGraphStore(cfg *store.StorageConfig) (store.GraphStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "creating data dir: %w", err)
	}
	return NewGraphStore(filepath.Join(cfg.DataDir, "memory.db"))
}

func newVectorIndex(cfg *store.VectorConfig) (store.VectorIndex, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreDatabaseFailure, "creating data dir: %w", err)
	}
	return NewVectorIndex(filepath.Join(cfg.DataDir, cfg.Collection+".vectors.db"), cfg.Dimensions)
}
