// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package openrouter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/provider/openrouter"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRouter_MissingAPIKey(t *testing.T) {
	_, err := openrouter.New(openrouter.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, palaiserr.HasCode(err, palaiserr.CodeProviderRequestInvalid))
}

func TestOpenRouter_CompletionOnly(t *testing.T) {
	p, err := openrouter.New(openrouter.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p.Name())
	assert.Equal(t, []string{provider.CapabilityComplete}, provider.CapabilitiesOf(p))
}

func TestOpenRouter_Complete(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"gen-1","object":"chat.completion","created":1,"model":"deepseek/deepseek-chat",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(srv.Close)

	p, err := openrouter.New(openrouter.Config{APIKey: "sk-or-test", BaseURL: srv.URL + "/api/v1"})
	require.NoError(t, err)

	out, err := p.Complete(context.Background(), provider.CompletionRequest{Model: "deepseek/deepseek-chat", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	r := <-seen
	assert.Equal(t, "Bearer sk-or-test", r.Header.Get("Authorization"))
	assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
}
