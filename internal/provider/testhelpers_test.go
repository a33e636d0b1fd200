// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package provider_test

import (
	"context"
	"sync/atomic"

	"github.com/palais-dev/palais/internal/provider"
)

// fakeEmbedder returns a fixed vector or a fixed error and counts calls.
type fakeEmbedder struct {
	name   string
	vector []float32
	err    error
	calls  atomic.Int64
}

func (f *fakeEmbedder) Name() string { return f.name }

func (f *fakeEmbedder) Status(context.Context) provider.Status {
	return provider.Status{Provider: f.name, Available: true}
}

func (f *fakeEmbedder) Close() error { return nil }

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vector...), nil
}

// fakeCompleter answers every prompt with reply.
type fakeCompleter struct {
	name  string
	reply string
	err   error
	calls atomic.Int64
	last  provider.CompletionRequest
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) Status(context.Context) provider.Status {
	return provider.Status{Provider: f.name, Available: true}
}

func (f *fakeCompleter) Close() error { return nil }

func (f *fakeCompleter) Complete(_ context.Context, req provider.CompletionRequest) (string, error) {
	f.calls.Add(1)
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// bareProvider implements neither capability.
type bareProvider struct{}

func (bareProvider) Name() string                            { return "bare" }
func (bareProvider) Status(context.Context) provider.Status { return provider.Status{} }
func (bareProvider) Close() error                            { return nil }
