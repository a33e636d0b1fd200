// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSpec(t *testing.T) {
	spec, err := generateSpec()
	require.NoError(t, err)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(spec, &doc))
	assert.Contains(t, doc.OpenAPI, "3.1")

	for path, method := range map[string]string{
		"/health":                           "get",
		"/api/v1/memory/nodes":              "post",
		"/api/v1/memory/nodes/{id}":         "get",
		"/api/v1/memory/nodes/{id}/extract": "post",
		"/api/v1/memory/nodes/{id}/reembed": "post",
		"/api/v1/memory/edges":              "post",
		"/api/v1/memory/search":             "post",
		"/api/v1/memory/recall/{id}":        "get",
		"/api/v1/memory/events":             "post",
		"/api/v1/memory/status":             "get",
	} {
		require.Contains(t, doc.Paths, path)
		assert.Contains(t, doc.Paths[path], method, path)
	}
}

func TestGenerateSpec_ValidJSON(t *testing.T) {
	spec, err := generateSpec()
	require.NoError(t, err)
	assert.Greater(t, len(spec), 100, "spec should be non-trivial")
	assert.Equal(t, byte('{'), spec[0], "spec should be JSON object")
}
