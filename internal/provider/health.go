// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package provider

import (
	"sync"
	"time"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// HealthMetrics is the point-in-time health of one provider as reported on
// the status endpoint.
type HealthMetrics struct {
	FailureCount  int64      `json:"failureCount"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	CooldownUntil *time.Time `json:"cooldownUntil,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	Available     bool       `json:"available"`
}

// HealthTracker records upstream failures for a provider. A failure marks
// the provider unavailable until the cooldown elapses; the circuit breaker
// makes the actual admit/reject decision.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	lastErr      string
	nowFunc      func() time.Time // for testing
}

// DefaultHealthCooldown matches the breaker's open-state timeout.
const DefaultHealthCooldown = 60 * time.Second

// NewHealthTracker creates a HealthTracker that starts healthy.
// Returns an error if cooldown is zero or negative.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked reports whether the provider is healthy or the cooldown
// has elapsed. The caller MUST hold at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy returns true if the provider is healthy or the cooldown has elapsed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

// RecordSuccess marks the provider as healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.mu.Unlock()
}

// RecordFailure marks the provider as unhealthy, increments the failure
// count and remembers err for the status snapshot.
func (h *HealthTracker) RecordFailure(err error) {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	if err != nil {
		h.lastErr = err.Error()
	}
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// HealthMetrics returns a point-in-time snapshot of the tracker state.
func (h *HealthTracker) HealthMetrics() HealthMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HealthMetrics{
		FailureCount: h.failureCount,
		LastError:    h.lastErr,
	}

	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}

	m.Available = h.isHealthyLocked()
	if !h.healthy {
		cooldownEnd := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}

// HealthMetricsPtr returns HealthMetrics by pointer for Status.Health.
func (h *HealthTracker) HealthMetricsPtr() *HealthMetrics {
	hm := h.HealthMetrics()
	return &hm
}
