// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	defaultMaxVisitors   = 10000
	visitorStaleAfter    = 10 * time.Minute
	visitorSweepInterval = 5 * time.Minute
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
	// MaxVisitors caps the number of tracked IPs; the least recently seen
	// are evicted first. Zero uses 10000.
	MaxVisitors int
}

// Validate checks the configuration and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return palaiserr.Errorf(palaiserr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return palaiserr.Errorf(palaiserr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)", c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return palaiserr.Errorf(palaiserr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

// bucket is a token bucket for one client IP.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

type limiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	visitors map[string]*bucket
	now      func() time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		cfg:      cfg,
		visitors: make(map[string]*bucket),
		now:      time.Now,
	}
}

// allow refills ip's bucket for the time since it was last seen and takes
// one token if available.
func (l *limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.visitors[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastSeen: now}
		l.visitors[ip] = b
	}
	b.tokens = min(float64(l.cfg.Burst), b.tokens+now.Sub(b.lastSeen).Seconds()*l.cfg.RequestsPerSecond)
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops idle visitors, then the least recently seen ones above the cap.
func (l *limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, b := range l.visitors {
		if now.Sub(b.lastSeen) > visitorStaleAfter {
			delete(l.visitors, ip)
		}
	}

	excess := len(l.visitors) - l.cfg.MaxVisitors
	if l.cfg.MaxVisitors <= 0 || excess <= 0 {
		return
	}
	ips := make([]string, 0, len(l.visitors))
	for ip := range l.visitors {
		ips = append(ips, ip)
	}
	slices.SortFunc(ips, func(a, b string) int {
		return l.visitors[a].lastSeen.Compare(l.visitors[b].lastSeen)
	})
	for _, ip := range ips[:excess] {
		delete(l.visitors, ip)
	}
	slog.Warn("rate limiter visitor cap enforced",
		"evicted", excess, "max_visitors", l.cfg.MaxVisitors)
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// rateLimitMiddleware enforces per-IP token buckets. It is a pass-through
// when cfg.RequestsPerSecond is zero. The sweeper goroutine exits when done
// is closed.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(visitorSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Limit by IP, not by connection.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !l.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
