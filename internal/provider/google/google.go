// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/palais-dev/palais/internal/provider"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// DefaultEmbeddingModel yields 768-dimension vectors; vector.dimensions
// must be set to match when Gemini is the embedding provider.
const DefaultEmbeddingModel = "text-embedding-004"

// Config holds Google provider configuration.
type Config struct {
	APIKey         string
	BaseURL        string // optional, useful for testing against a mock server
	EmbeddingModel string
}

// Provider implements provider.Completer and provider.Embedder using the
// Gemini API.
type Provider struct {
	client         *genai.Client
	embeddingModel string
}

var (
	_ provider.Completer = (*Provider)(nil)
	_ provider.Embedder  = (*Provider)(nil)
)

// New creates a new Google provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid, "google: missing api_key in config", palaiserr.FieldProvider("google"))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, palaiserr.Wrapf(err, palaiserr.CodeProviderUpstreamFailure, "google: creating client")
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Provider{client: client, embeddingModel: model}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Status(_ context.Context) provider.Status {
	return provider.Status{Provider: "google", Available: true}
}

func (p *Provider) Close() error { return nil }

// Complete runs a single generateContent call.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if req.Model == "" || strings.TrimSpace(req.Prompt) == "" {
		return "", palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"google: model and prompt are required", palaiserr.FieldProvider("google"))
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), buildConfig(req))
	if err != nil {
		return "", upstreamError(err, "google: generate content failed")
	}
	text := resp.Text()
	if text == "" {
		return "", palaiserr.New(palaiserr.CodeProviderResponseInvalid,
			"google: response has no text content", palaiserr.FieldProvider("google"))
	}
	return text, nil
}

// Embed embeds text with the configured embedding model.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"google: embedding input is empty", palaiserr.FieldProvider("google"))
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, upstreamError(err, "google: embed content failed")
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, palaiserr.New(palaiserr.CodeProviderResponseInvalid,
			"google: embedding response has no vector", palaiserr.FieldProvider("google"))
	}
	return resp.Embeddings[0].Values, nil
}

// buildConfig converts a provider.CompletionRequest into a genai.GenerateContentConfig.
func buildConfig(req provider.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	return cfg
}

func upstreamError(err error, msg string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return palaiserr.Wrap(err, palaiserr.CodeProviderUpstreamFailure, msg,
			palaiserr.FieldProvider("google"), palaiserr.Field("status", apiErr.Code))
	}
	return palaiserr.Wrap(err, palaiserr.CodeProviderUpstreamFailure, msg, palaiserr.FieldProvider("google"))
}
