// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package store

import (
	"slices"
	"sync"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	// DefaultVectorDimensions matches text-embedding-3-small.
	DefaultVectorDimensions = 1536
	// DefaultCollection is the vector index collection used when none is configured.
	DefaultCollection = "palais_memory"
)

// GraphStoreFactory creates the graph store rooted at a data directory.
type GraphStoreFactory func(cfg *StorageConfig) (GraphStore, error)

// VectorIndexFactory creates a vector index from its configuration.
type VectorIndexFactory func(cfg *VectorConfig) (VectorIndex, error)

var (
	graphFactories  = map[string]GraphStoreFactory{}
	vectorFactories = map[string]VectorIndexFactory{}
	factoriesMu     sync.RWMutex
)

// RegisterGraphBackend registers a graph store factory for a named backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterGraphBackend(name string, f GraphStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	graphFactories[name] = f
}

// RegisterVectorBackend registers a vector index factory for a named backend.
func RegisterVectorBackend(name string, f VectorIndexFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	vectorFactories[name] = f
}

// NewGraphStore creates the graph store for cfg, defaulting to "sqlite".
func NewGraphStore(cfg *StorageConfig) (GraphStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "sqlite"
	}

	factoriesMu.RLock()
	factory, ok := graphFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(cfg)
}

// NewVectorIndex creates the vector index for cfg, defaulting to "qdrant".
// Zero dimensions and an empty collection are replaced by the defaults
// before the factory runs.
func NewVectorIndex(cfg *VectorConfig) (VectorIndex, error) {
	resolved := *cfg
	if resolved.Backend == "" {
		resolved.Backend = "qdrant"
	}
	if resolved.Dimensions <= 0 {
		resolved.Dimensions = DefaultVectorDimensions
	}
	if resolved.Collection == "" {
		resolved.Collection = DefaultCollection
	}

	factoriesMu.RLock()
	factory, ok := vectorFactories[resolved.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, palaiserr.Errorf(palaiserr.CodeStoreBackendUnsupported, "unsupported vector backend: %q", resolved.Backend)
	}

	return factory(&resolved)
}

// VectorBackends lists the registered vector index backends.
func VectorBackends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(vectorFactories))
	for name := range vectorFactories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
