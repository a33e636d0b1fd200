// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package openai talks to any OpenAI-compatible endpoint. The default
// target is the LiteLLM gateway, which fronts every model Palais uses.
package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/palais-dev/palais/internal/provider"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	// DefaultName is the registry name used when Config.Name is empty.
	DefaultName = "litellm"
	// DefaultBaseURL is the in-cluster LiteLLM endpoint.
	DefaultBaseURL = "http://litellm:4000/v1"
	// DefaultEmbeddingModel produces 1536-dimension vectors.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultTimeout bounds each upstream call.
	DefaultTimeout = 30 * time.Second
)

// Config holds the gateway connection settings. APIKey may be empty when
// the gateway runs without authentication.
type Config struct {
	Name           string
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	Timeout        time.Duration
}

// Provider implements provider.Completer and provider.Embedder.
type Provider struct {
	client openaisdk.Client
	config Config
}

var (
	_ provider.Provider  = (*Provider)(nil)
	_ provider.Completer = (*Provider)(nil)
	_ provider.Embedder  = (*Provider)(nil)
)

// New creates a gateway client. SDK retries are disabled; the breaker in
// front of the provider decides what happens after a failure.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"base_url must be an http(s) URL", palaiserr.FieldProvider(cfg.Name))
	}

	client := openaisdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return &Provider{client: client, config: cfg}, nil
}

func (p *Provider) Name() string { return p.config.Name }

func (p *Provider) Status(_ context.Context) provider.Status {
	return provider.Status{Provider: p.config.Name, Available: true}
}

func (p *Provider) Close() error { return nil }

// Embed requests a float embedding for text with the configured model.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"embedding input is empty", palaiserr.FieldProvider(p.config.Name))
	}

	resp, err := p.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model:          openaisdk.EmbeddingModel(p.config.EmbeddingModel),
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, upstreamError(err, p.config.Name, "embeddings request failed")
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, palaiserr.New(palaiserr.CodeProviderResponseInvalid,
			"embeddings response has no vector", palaiserr.FieldProvider(p.config.Name))
	}
	return provider.Float64sToFloat32s(resp.Data[0].Embedding), nil
}

// Complete sends a system + user message pair and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	params, err := buildParams(req)
	if err != nil {
		return "", palaiserr.With(err, palaiserr.FieldProvider(p.config.Name))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", upstreamError(err, p.config.Name, "chat completion request failed")
	}
	if len(resp.Choices) == 0 {
		return "", palaiserr.New(palaiserr.CodeProviderResponseInvalid,
			"chat completion has no choices", palaiserr.FieldProvider(p.config.Name))
	}
	return resp.Choices[0].Message.Content, nil
}

func buildParams(req provider.CompletionRequest) (openaisdk.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openaisdk.ChatCompletionNewParams{}, palaiserr.New(palaiserr.CodeProviderRequestInvalid, "model is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return openaisdk.ChatCompletionNewParams{}, palaiserr.New(palaiserr.CodeProviderRequestInvalid, "prompt is required")
	}

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	return params, nil
}

// upstreamError maps SDK errors to provider codes, keeping the HTTP status
// when the gateway answered.
func upstreamError(err error, name, msg string) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return palaiserr.Wrap(err, palaiserr.CodeProviderUpstreamFailure, msg,
			palaiserr.FieldProvider(name),
			palaiserr.Field("status", apiErr.StatusCode),
		)
	}
	return palaiserr.Wrap(err, palaiserr.CodeProviderUpstreamFailure, msg, palaiserr.FieldProvider(name))
}
