// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// parseTrustedProxies parses CIDR ranges, skipping blank entries. At least
// one valid range is required.
func parseTrustedProxies(cidrs []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, palaiserr.Errorf(palaiserr.CodeServerConfigInvalid,
				"invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		nets = append(nets, ipNet)
	}
	if len(nets) == 0 {
		return nil, palaiserr.New(palaiserr.CodeServerConfigInvalid,
			"trusted proxies must contain at least one valid CIDR range")
	}
	return nets, nil
}

func isTrustedProxy(ip net.IP, trusted []*net.IPNet) bool {
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// forwardedClientIP returns the client address a proxy reported, preferring
// the leftmost X-Forwarded-For entry over X-Real-IP.
func forwardedClientIP(r *http.Request) (string, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first, true
		}
		slog.Warn("invalid IP in X-Forwarded-For, using connecting IP", "xff_value", first)
		return "", false
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri, true
	}
	return "", false
}

// trustedProxyRealIP rewrites r.RemoteAddr from forwarding headers only
// when the connecting peer is a trusted proxy. Headers from any other peer
// are ignored so clients cannot spoof their address past the rate limiter.
func trustedProxyRealIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				peer = r.RemoteAddr
			}

			ip := net.ParseIP(peer)
			if ip == nil || !isTrustedProxy(ip, trusted) {
				next.ServeHTTP(w, r)
				return
			}

			if client, ok := forwardedClientIP(r); ok {
				r.RemoteAddr = net.JoinHostPort(client, "0")
			}
			next.ServeHTTP(w, r)
		})
	}
}
