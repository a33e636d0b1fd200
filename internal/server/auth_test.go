// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	h := authMiddleware("s3cret")(okHandler())

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"valid token", http.MethodGet, "/api/v1/memory/nodes", "Bearer s3cret", http.StatusOK},
		{"missing token", http.MethodGet, "/api/v1/memory/nodes", "", http.StatusUnauthorized},
		{"wrong token", http.MethodPost, "/api/v1/memory/search", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/api/v1/memory/nodes", "Basic s3cret", http.StatusUnauthorized},
		{"mcp requires token", http.MethodPost, "/mcp", "", http.StatusUnauthorized},
		{"health is open", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics is open", http.MethodGet, "/metrics", "", http.StatusOK},
		{"preflight is open", http.MethodOptions, "/api/v1/memory/nodes", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	h := authMiddleware("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/memory/nodes", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
