// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

//go:build !windows

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		perm os.FileMode
		warn bool
	}{
		{0o600, false},
		{0o400, false},
		{0o640, true},
		{0o604, true},
	}

	for _, tt := range tests {
		t.Run(tt.perm.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "palais.yaml")
			require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600))
			require.NoError(t, os.Chmod(path, tt.perm))

			logs := captureLogs(t)
			WarnInsecurePermissions(path)

			if tt.warn {
				assert.Contains(t, logs.String(), "readable by other users")
				assert.Contains(t, logs.String(), path)
				assert.Contains(t, logs.String(), "0600")
			} else {
				assert.NotContains(t, logs.String(), "level=WARN")
			}
		})
	}
}

func TestWarnInsecurePermissions_EmptyPath(t *testing.T) {
	logs := captureLogs(t)
	WarnInsecurePermissions("")
	assert.Empty(t, logs.String())
}

func TestWarnInsecurePermissions_MissingFile(t *testing.T) {
	logs := captureLogs(t)
	WarnInsecurePermissions("/nonexistent/palais.yaml")
	assert.NotContains(t, logs.String(), "level=WARN")
}
