// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package openrouter sends completions straight to OpenRouter, bypassing
// the LiteLLM gateway. It is completion-only.
package openrouter

import (
	"context"
	"time"

	"github.com/palais-dev/palais/internal/provider"
	"github.com/palais-dev/palais/internal/provider/openai"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const baseURL = "https://openrouter.ai/api/v1"

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Timeout time.Duration
}

// Provider implements provider.Completer over OpenRouter's
// OpenAI-compatible API.
type Provider struct {
	inner *openai.Provider
}

var _ provider.Completer = (*Provider)(nil)

// New creates a new OpenRouter provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"openrouter: missing api_key in config", palaiserr.FieldProvider("openrouter"))
	}
	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	inner, err := openai.New(openai.Config{
		Name:    "openrouter",
		APIKey:  cfg.APIKey,
		BaseURL: base,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{inner: inner}, nil
}

func (p *Provider) Name() string { return "openrouter" }

func (p *Provider) Status(ctx context.Context) provider.Status { return p.inner.Status(ctx) }

func (p *Provider) Close() error { return p.inner.Close() }

func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	return p.inner.Complete(ctx, req)
}
