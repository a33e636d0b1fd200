// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package qdrant implements store.VectorIndex over the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	// DefaultURL is the Qdrant endpoint used when none is configured.
	DefaultURL     = "http://qdrant:6333"
	defaultTimeout = 10 * time.Second
	// maxErrorBody bounds how much of an error response is kept in errors.
	maxErrorBody = 512
)

func init() {
	store.RegisterVectorBackend("qdrant", func(cfg *store.VectorConfig) (store.VectorIndex, error) {
		return New(Config{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	})
}

// Compile-time interface check.
var _ store.VectorIndex = (*Client)(nil)

// Config configures a Client.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to one Qdrant collection. Qdrant point ids must be unsigned
// integers or UUIDs, so a "node-<id>" key is stored as the numeric point id
// <id> and kept verbatim in the payload under "key".
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	dimensions int
	http       *http.Client
}

// New creates a Client. It does not contact the server.
func New(cfg Config) (*Client, error) {
	base := cfg.URL
	if base == "" {
		base = DefaultURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeConfigValidateInvalidValue, "invalid qdrant url %q: %w", base, err)
	}
	if cfg.Collection == "" {
		cfg.Collection = store.DefaultCollection
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = store.DefaultVectorDimensions
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		http:       hc,
	}, nil
}

// Collection returns the collection name this client targets.
func (c *Client) Collection() string { return c.collection }

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

type searchRequest struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold"`
	WithPayload    bool      `json:"with_payload"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

// EnsureCollection checks for the collection and creates it with cosine
// distance when it does not exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, c.collectionPath(""), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		slog.Debug("qdrant collection exists", slog.String("collection", c.collection))
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimensions,
			"distance": "Cosine",
		},
	}
	status, resp, err := c.do(ctx, http.MethodPut, c.collectionPath(""), body)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return upstreamError("creating collection", status, resp, c.collection)
	}

	slog.Info("qdrant collection created",
		slog.String("collection", c.collection),
		slog.Int("dimensions", c.dimensions),
	)
	return nil
}

// Upsert writes one point, waiting for Qdrant to apply it.
func (c *Client) Upsert(ctx context.Context, p store.Point) error {
	id, err := pointID(p.Key)
	if err != nil {
		return err
	}

	payload := make(map[string]any, len(p.Payload)+1)
	for k, v := range p.Payload {
		payload[k] = v
	}
	payload["key"] = p.Key

	body := map[string]any{
		"points": []point{{ID: id, Vector: p.Vector, Payload: payload}},
	}
	status, resp, err := c.do(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), body)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return upstreamError("upserting point", status, resp, c.collection)
	}
	return nil
}

// Search returns the closest points with a similarity at or above the
// query threshold.
func (c *Client) Search(ctx context.Context, q store.VectorQuery) ([]store.VectorHit, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	req := searchRequest{
		Vector:         q.Vector,
		Limit:          q.Limit,
		ScoreThreshold: q.ScoreThreshold,
		WithPayload:    true,
	}
	status, resp, err := c.do(ctx, http.MethodPost, c.collectionPath("/points/search"), req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, upstreamError("searching points", status, resp, c.collection)
	}

	var decoded searchResponse
	if err := json.Unmarshal(resp, &decoded); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeVectorResponseInvalid, "decoding qdrant search response: %w", err)
	}

	hits := make([]store.VectorHit, 0, len(decoded.Result))
	for _, sp := range decoded.Result {
		hits = append(hits, store.VectorHit{
			Key:     hitKey(sp),
			Score:   sp.Score,
			Payload: sp.Payload,
		})
	}
	return hits, nil
}

// Delete removes points by key.
func (c *Client) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(keys))
	for _, key := range keys {
		id, err := pointID(key)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	body := map[string]any{"points": ids}
	status, resp, err := c.do(ctx, http.MethodPost, c.collectionPath("/points/delete?wait=true"), body)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return upstreamError("deleting points", status, resp, c.collection)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(c.collection) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, palaiserr.Errorf(palaiserr.CodeStoreInvalidInput, "encoding qdrant request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, palaiserr.Errorf(palaiserr.CodeVectorUpstreamFailure, "building qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, palaiserr.Wrap(err, palaiserr.CodeVectorUpstreamFailure, "calling qdrant",
			palaiserr.FieldCollection(c.collection),
			palaiserr.Field("path", path),
		)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, palaiserr.Errorf(palaiserr.CodeVectorUpstreamFailure, "reading qdrant response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func pointID(key string) (uint64, error) {
	id, ok := store.ParsePointKey(key)
	if !ok {
		return 0, palaiserr.Errorf(palaiserr.CodeStoreInvalidInput, "invalid point key %q", key)
	}
	return uint64(id), nil
}

// hitKey recovers the point key, preferring the stored payload key and
// falling back to the numeric point id.
func hitKey(sp scoredPoint) string {
	if key, ok := sp.Payload["key"].(string); ok && key != "" {
		return key
	}
	var id uint64
	if err := json.Unmarshal(sp.ID, &id); err == nil {
		return store.PointKey(int64(id))
	}
	var s string
	if err := json.Unmarshal(sp.ID, &s); err == nil {
		return s
	}
	return string(sp.ID)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func upstreamError(op string, status int, body []byte, collection string) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return palaiserr.New(palaiserr.CodeVectorUpstreamFailure, fmt.Sprintf("qdrant %s: status %d", op, status),
		palaiserr.FieldCollection(collection),
		palaiserr.Field("status", status),
		palaiserr.Field("body", string(body)),
	)
}
