// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func TestParseTrustedProxies(t *testing.T) {
	nets, err := parseTrustedProxies([]string{"10.0.0.0/8", "  ", "", "fd00::/8"})
	require.NoError(t, err)
	assert.Len(t, nets, 2)

	_, err = parseTrustedProxies([]string{"not-a-cidr"})
	require.Error(t, err)
	assert.True(t, palaiserr.HasCode(err, palaiserr.CodeServerConfigInvalid))
	assert.Contains(t, err.Error(), "invalid trusted proxy CIDR")

	_, err = parseTrustedProxies([]string{"", "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one valid CIDR")
}

func TestIsTrustedProxy(t *testing.T) {
	nets, err := parseTrustedProxies([]string{"10.0.0.0/8", "192.168.0.0/16"})
	require.NoError(t, err)

	tests := []struct {
		ip      string
		trusted bool
	}{
		{"10.1.2.3", true},
		{"192.168.1.1", true},
		{"172.16.0.1", false},
		{"8.8.8.8", false},
		{"127.0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.trusted, isTrustedProxy(net.ParseIP(tt.ip), nets))
		})
	}
}

func TestTrustedProxyRealIP(t *testing.T) {
	nets, err := parseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "trusted proxy uses leftmost forwarded IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"},
			want:       "203.0.113.50:0",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.50"},
			want:       "203.0.113.50:0",
		},
		{
			name:       "trusted proxy without headers",
			remoteAddr: "10.0.0.1:12345",
			want:       "10.0.0.1:12345",
		},
		{
			name:       "trusted proxy with invalid forwarded IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:       "10.0.0.1:12345",
		},
		{
			name:       "untrusted peer cannot spoof a private IP",
			remoteAddr: "203.0.113.99:54321",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1"},
			want:       "203.0.113.99:54321",
		},
		{
			name:       "untrusted multi-hop chain is ignored",
			remoteAddr: "203.0.113.99:12345",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8, 10.0.0.1"},
			want:       "203.0.113.99:12345",
		},
		{
			name:       "IPv6 peer does not match IPv4 ranges",
			remoteAddr: "[2001:db8::1]:12345",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1"},
			want:       "[2001:db8::1]:12345",
		},
		{
			name:       "unparsable remote address",
			remoteAddr: "not-a-valid-ip",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			want:       "not-a-valid-ip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			h := trustedProxyRealIP(nets)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				captured = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/memory/nodes", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, captured)
		})
	}
}
