// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package store

import "time"

// StorageConfig controls which graph backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" is the only supported backend for now.
	DataDir string
}

// VectorConfig controls which vector index backend the factory uses.
type VectorConfig struct {
	Backend    string // "qdrant", "sqlite" or "chromem".
	URL        string
	APIKey     string
	Collection string
	Dimensions int // 0 uses the default (1536).
	Timeout    time.Duration
	DataDir    string
}
