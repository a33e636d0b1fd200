// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// BreakerConfig tunes the circuit breaker placed in front of a provider.
type BreakerConfig struct {
	// MaxRequests is the number of trial calls admitted while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts periodically. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            30 * time.Second,
		Timeout:             DefaultHealthCooldown,
		ConsecutiveFailures: 3,
	}
}

// Breaker decorates a provider with a circuit breaker and health tracking.
// Calls are never retried; an open breaker fails immediately.
type Breaker struct {
	inner     Provider
	completer Completer
	embedder  Embedder
	cb        *gobreaker.CircuitBreaker
	health    *HealthTracker
}

var (
	_ Provider  = (*Breaker)(nil)
	_ Completer = (*Breaker)(nil)
	_ Embedder  = (*Breaker)(nil)
)

// NewBreaker wraps p. p must implement Completer, Embedder or both.
func NewBreaker(p Provider, cfg BreakerConfig) (*Breaker, error) {
	completer, _ := p.(Completer)
	embedder, _ := p.(Embedder)
	if completer == nil && embedder == nil {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"provider implements neither completion nor embeddings", palaiserr.FieldProvider(p.Name()))
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}

	tracker, err := NewHealthTracker(cfg.Timeout)
	if err != nil {
		return nil, err
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit breaker state change",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: countsAsSuccess,
	}

	return &Breaker{
		inner:     p,
		completer: completer,
		embedder:  embedder,
		cb:        gobreaker.NewCircuitBreaker(settings),
		health:    tracker,
	}, nil
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping
// the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return palaiserr.HasCode(err, palaiserr.CodeProviderRequestInvalid)
}

func (b *Breaker) Name() string { return b.inner.Name() }

// State returns the breaker state name (closed, half-open, open).
func (b *Breaker) State() string { return b.cb.State().String() }

// Health exposes the tracker for status reporting.
func (b *Breaker) Health() *HealthTracker { return b.health }

func (b *Breaker) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if b.completer == nil {
		return "", palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"provider does not support completion", palaiserr.FieldProvider(b.Name()))
	}
	out, err := b.execute(func() (any, error) {
		return b.completer.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (b *Breaker) Embed(ctx context.Context, text string) ([]float32, error) {
	if b.embedder == nil {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"provider does not support embeddings", palaiserr.FieldProvider(b.Name()))
	}
	out, err := b.execute(func() (any, error) {
		return b.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, palaiserr.Wrap(err, palaiserr.CodeProviderCircuitOpen,
			"provider temporarily unavailable", palaiserr.FieldProvider(b.Name()))
	case err != nil:
		if !countsAsSuccess(err) {
			b.health.RecordFailure(err)
		}
		return nil, err
	}
	b.health.RecordSuccess()
	return out, nil
}

// Status reports the wrapped provider's capabilities together with the
// breaker state and health snapshot.
func (b *Breaker) Status(ctx context.Context) Status {
	st := b.inner.Status(ctx)
	st.Provider = b.Name()
	st.Capabilities = CapabilitiesOf(b.inner)
	st.Breaker = b.State()
	st.Health = b.health.HealthMetricsPtr()
	st.Available = st.Available && b.cb.State() != gobreaker.StateOpen
	return st
}

func (b *Breaker) Close() error { return b.inner.Close() }
