// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/palais-dev/palais/internal/provider"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const defaultMaxTokens = 1024

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Timeout time.Duration
}

// Provider implements provider.Completer using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
}

var _ provider.Completer = (*Provider)(nil)

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"anthropic: missing api_key in config", palaiserr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Provider{client: anthropicsdk.NewClient(opts...)}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Status(_ context.Context) provider.Status {
	return provider.Status{Provider: "anthropic", Available: true}
}

func (p *Provider) Close() error { return nil }

// Complete sends a single user turn and concatenates the text blocks of
// the reply.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	params, err := buildParams(req)
	if err != nil {
		return "", err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropicsdk.Error
		if errors.As(err, &apiErr) {
			return "", palaiserr.Wrap(err, palaiserr.CodeProviderUpstreamFailure, "anthropic: messages request failed",
				palaiserr.FieldProvider("anthropic"), palaiserr.Field("status", apiErr.StatusCode))
		}
		return "", palaiserr.Wrap(err, palaiserr.CodeProviderUpstreamFailure, "anthropic: messages request failed",
			palaiserr.FieldProvider("anthropic"))
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", palaiserr.New(palaiserr.CodeProviderResponseInvalid,
			"anthropic: response has no text content", palaiserr.FieldProvider("anthropic"))
	}
	return b.String(), nil
}

// buildParams converts a provider.CompletionRequest into Anthropic SDK MessageNewParams.
func buildParams(req provider.CompletionRequest) (anthropicsdk.MessageNewParams, error) {
	if req.Model == "" || strings.TrimSpace(req.Prompt) == "" {
		return anthropicsdk.MessageNewParams{}, palaiserr.New(palaiserr.CodeProviderRequestInvalid,
			"anthropic: model and prompt are required", palaiserr.FieldProvider("anthropic"))
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}
	return params, nil
}
