// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palais-dev/palais/internal/secrets"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // "service/key" -> value
}

func newMockSecretStore(t *testing.T) *mockSecretStore {
	t.Helper()
	m := &mockSecretStore{data: make(map[string]string)}
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return m }
	t.Cleanup(func() { secretStoreFactory = old })
	return m
}

func (m *mockSecretStore) Get(service, key string) (string, error) {
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", palaiserr.Errorf(palaiserr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Set(service, key, value string) error {
	m.data[service+"/"+key] = value
	return nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	if _, ok := m.data[service+"/"+key]; !ok {
		return palaiserr.Errorf(palaiserr.CodeSecretNotFound, "not found")
	}
	delete(m.data, service+"/"+key)
	return nil
}

func runCmdWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestSecretSet_FromFlag(t *testing.T) {
	store := newMockSecretStore(t)

	out, err := runCmd(t, "secret", "set", "openai", "--value", "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", store.data["palais/openai"])
	assert.Contains(t, out, "Reference: keyring://palais/openai")
}

func TestSecretSet_FromStdin(t *testing.T) {
	store := newMockSecretStore(t)

	_, err := runCmdWithInput(t, "sk-stdin\n", "secret", "set", "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-stdin", store.data["palais/anthropic"])
}

func TestSecretSet_EmptyValue(t *testing.T) {
	newMockSecretStore(t)

	_, err := runCmdWithInput(t, "\n", "secret", "set", "openai")
	require.Error(t, err)
	assert.True(t, palaiserr.HasCode(err, palaiserr.CodeCLIInputInvalid))
}

func TestSecretDelete(t *testing.T) {
	store := newMockSecretStore(t)
	store.data["palais/openai"] = "sk-test"

	out, err := runCmd(t, "secret", "delete", "openai")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted secret: openai")
	assert.NotContains(t, store.data, "palais/openai")
}

func TestSecretDelete_NotFound(t *testing.T) {
	newMockSecretStore(t)

	_, err := runCmd(t, "secret", "delete", "missing")
	require.Error(t, err)
	assert.True(t, palaiserr.HasCode(err, palaiserr.CodeSecretNotFound))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestClient_ResolvesTokenReference(t *testing.T) {
	store := newMockSecretStore(t)
	store.data["palais/api-token"] = "resolved-token"
	t.Setenv("PALAIS_NETWORKING_API_TOKEN", "keyring://palais/api-token")

	f, url := newFakeServer(t, map[string]fakeReply{
		"GET /api/v1/memory/nodes": {200, `{"nodes":[]}`},
	})
	_, err := runCmd(t, "memory", "list", "--server", url)
	require.NoError(t, err)
	assert.Equal(t, "Bearer resolved-token", f.last(t).Auth)
}
