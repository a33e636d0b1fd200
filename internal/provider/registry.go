// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package provider

import (
	"context"
	"slices"
	"sync"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Registry holds the configured providers, each behind its own breaker.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Breaker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Breaker)}
}

// Register wraps p in a breaker and adds it under p.Name().
func (r *Registry) Register(p Provider, cfg BreakerConfig) (*Breaker, error) {
	b, err := NewBreaker(p, cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.providers[p.Name()]; dup {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"provider already registered", palaiserr.FieldProvider(p.Name()))
	}
	r.providers[p.Name()] = b
	return b, nil
}

func (r *Registry) get(name string) (*Breaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.providers[name]
	if !ok {
		return nil, palaiserr.New(palaiserr.CodeProviderNotFound,
			"provider not configured", palaiserr.FieldProvider(name))
	}
	return b, nil
}

// Completer returns the named provider if it supports completion.
func (r *Registry) Completer(name string) (Completer, error) {
	b, err := r.get(name)
	if err != nil {
		return nil, err
	}
	if b.completer == nil {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"provider does not support completion", palaiserr.FieldProvider(name))
	}
	return b, nil
}

// Embedder returns the named provider if it supports embeddings.
func (r *Registry) Embedder(name string) (Embedder, error) {
	b, err := r.get(name)
	if err != nil {
		return nil, err
	}
	if b.embedder == nil {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"provider does not support embeddings", palaiserr.FieldProvider(name))
	}
	return b, nil
}

// Names returns registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Statuses returns a status snapshot per provider, sorted by name.
func (r *Registry) Statuses(ctx context.Context) []Status {
	out := make([]Status, 0)
	for _, name := range r.Names() {
		b, err := r.get(name)
		if err != nil {
			continue
		}
		out = append(out, b.Status(ctx))
	}
	return out
}

// Close closes every provider and joins the errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, b := range r.providers {
		errs = append(errs, b.Close())
	}
	clear(r.providers)
	return palaiserr.Join(errs...)
}
