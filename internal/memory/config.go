// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import "time"

// Config tunes the background pipelines.
type Config struct {
	// EnrichNeighbors is the number of related_to candidates per node.
	EnrichNeighbors int
	// EnrichThreshold is the minimum cosine similarity for a related_to edge.
	EnrichThreshold float64

	ExtractionModel string
	// ExtractWindow is how many characters of content go to the model.
	ExtractWindow int
	MaxTriplets   int
	// AutoExtract runs extraction for every new episodic node.
	AutoExtract bool

	Workers   int
	QueueSize int
	// CallTimeout bounds each external call: one embedding, completion or
	// vector index request.
	CallTimeout time.Duration
	// TaskTimeout caps a whole background task, which may make many calls.
	TaskTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EnrichNeighbors: 5,
		EnrichThreshold: 0.8,
		ExtractionModel: "deepseek/deepseek-chat",
		ExtractWindow:   1000,
		MaxTriplets:     5,
		AutoExtract:     false,
		Workers:         4,
		QueueSize:       256,
		CallTimeout:     15 * time.Second,
		TaskTimeout:     10 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EnrichNeighbors <= 0 {
		c.EnrichNeighbors = d.EnrichNeighbors
	}
	if c.EnrichThreshold <= 0 {
		c.EnrichThreshold = d.EnrichThreshold
	}
	if c.ExtractionModel == "" {
		c.ExtractionModel = d.ExtractionModel
	}
	if c.ExtractWindow <= 0 {
		c.ExtractWindow = d.ExtractWindow
	}
	if c.MaxTriplets <= 0 {
		c.MaxTriplets = d.MaxTriplets
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	return c
}
