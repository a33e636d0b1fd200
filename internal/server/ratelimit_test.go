// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doFrom(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/memory/nodes", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr string
	}{
		{"disabled", RateLimitConfig{}, ""},
		{"valid", RateLimitConfig{RequestsPerSecond: 5, Burst: 10}, ""},
		{"negative rate", RateLimitConfig{RequestsPerSecond: -1}, "must not be negative"},
		{"missing burst", RateLimitConfig{RequestsPerSecond: 5}, "burst must be positive"},
		{"negative visitors", RateLimitConfig{MaxVisitors: -1}, "max visitors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, defaultMaxVisitors, cfg.MaxVisitors)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	h := rateLimitMiddleware(RateLimitConfig{Burst: 1}, done)(okHandler())
	for range 50 {
		assert.Equal(t, http.StatusOK, doFrom(h, "192.168.1.1:1234"))
	}
}

func TestRateLimitMiddleware_BurstThenReject(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	h := rateLimitMiddleware(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3}, done)(okHandler())

	for i := range 3 {
		assert.Equal(t, http.StatusOK, doFrom(h, "192.168.1.1:1234"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, doFrom(h, "192.168.1.1:5678"), "a new port is the same client")
	assert.Equal(t, http.StatusOK, doFrom(h, "192.168.1.2:1234"), "other clients have their own bucket")
}

func TestLimiter_Refills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 2, Burst: 1, MaxVisitors: 10})
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxVisitors: 2})
	l.now = func() time.Time { return now }

	l.allow("stale")
	now = now.Add(visitorStaleAfter + time.Second)
	for i := range 4 {
		now = now.Add(time.Second)
		l.allow(fmt.Sprintf("10.0.0.%d", i))
	}
	require.Equal(t, 5, l.size())

	l.sweep()
	assert.Equal(t, 2, l.size())

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Contains(t, l.visitors, "10.0.0.2")
	assert.Contains(t, l.visitors, "10.0.0.3")
}
