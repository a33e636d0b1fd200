// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package provider

import "context"

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer produces a single non-streaming text completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a one-shot prompt with an optional system message.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is an upstream model service. Implementations satisfy Completer,
// Embedder or both.
type Provider interface {
	Name() string
	Status(ctx context.Context) Status
	Close() error
}

// Status is the health snapshot of a single provider.
type Status struct {
	Provider     string         `json:"provider"`
	Available    bool           `json:"available"`
	Capabilities []string       `json:"capabilities"`
	Breaker      string         `json:"breaker,omitempty"`
	Health       *HealthMetrics `json:"health,omitempty"`
}

// Capability names reported in Status.
const (
	CapabilityComplete = "complete"
	CapabilityEmbed    = "embed"
)

// CapabilitiesOf reports which of the provider contracts p implements.
func CapabilitiesOf(p any) []string {
	var caps []string
	if _, ok := p.(Completer); ok {
		caps = append(caps, CapabilityComplete)
	}
	if _, ok := p.(Embedder); ok {
		caps = append(caps, CapabilityEmbed)
	}
	return caps
}

// Float64sToFloat32s narrows an SDK embedding to the index representation.
func Float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
