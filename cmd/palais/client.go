// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/palais-dev/palais/internal/secrets"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// defaultHTTPClient is the HTTP client used by commands that talk to a
// running server.
var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// serverClient provides HTTP access to a running palais server.
type serverClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newServerClient creates a client targeting addr, which is either
// host:port or a full http(s) URL.
func newServerClient(addr, token string) *serverClient {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &serverClient{baseURL: base, token: token, http: defaultHTTPClient}
}

// client builds a serverClient from --server/--token, falling back to the
// configured listen address and API token.
func (c *cli) client(cmd *cobra.Command) (*serverClient, error) {
	addr, _ := cmd.Flags().GetString("server")
	if addr == "" {
		addr = c.v.GetString("networking.listen")
	}
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		resolved, err := secrets.Resolve(secretStoreFactory(), c.v.GetString("networking.api_token"))
		if err != nil {
			return nil, err
		}
		token = resolved
	}
	return newServerClient(addr, token), nil
}

func (c *serverClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *serverClient) postJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

// do sends a request and decodes the JSON response into dest. A refused
// connection yields CodeCLIServerNotRunning; non-2xx responses carry the
// problem detail returned by the server.
func (c *serverClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return palaiserr.Wrap(err, palaiserr.CodeCLIInputInvalid, "encoding request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return palaiserr.Wrap(err, palaiserr.CodeCLIRequestFailure, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return palaiserr.Errorf(palaiserr.CodeCLIServerNotRunning, "server at %s is not running (connection refused)", c.baseURL)
		}
		return palaiserr.Wrap(err, palaiserr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return palaiserr.Wrap(err, palaiserr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

// responseError turns an RFC 9457 problem response into an error.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &problem); err == nil {
		switch {
		case problem.Detail != "":
			msg = problem.Detail
		case problem.Title != "":
			msg = problem.Title
		}
	}
	return palaiserr.New(palaiserr.CodeCLIRequestFailure, msg,
		palaiserr.Field("status", resp.StatusCode))
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
