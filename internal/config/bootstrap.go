// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const bootstrapHeader = `# Palais configuration.
#
# Every key can be overridden with a PALAIS_ environment variable, for
# example PALAIS_VECTOR_URL or PALAIS_MEMORY_AUTO_EXTRACT.
# API keys may be keyring://service/key references; store them with
# "palais secret set <key>".
`

const redacted = "<redacted>"

// Defaults returns the configuration produced by SetDefaults alone.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a decode failure is a programming error.
		panic(err)
	}
	return &cfg
}

// Render encodes cfg as YAML. Literal credentials are replaced with a
// placeholder; keyring references are kept.
func Render(cfg *Config) ([]byte, error) {
	out := *cfg
	out.Networking.APIToken = redact(out.Networking.APIToken)
	out.Vector.APIKey = redact(out.Vector.APIKey)
	if len(cfg.Providers) > 0 {
		out.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
		for name, p := range cfg.Providers {
			p.APIKey = redact(p.APIKey)
			out.Providers[name] = p
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, palaiserr.Errorf(palaiserr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

func redact(v string) string {
	if v == "" || strings.HasPrefix(v, "keyring://") {
		return v
	}
	return redacted
}

// DefaultConfigPath returns ~/.config/palais/palais.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", palaiserr.Errorf(palaiserr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "palais", "palais.yaml"), nil
}

// BootstrapConfig writes the default config to path unless a file is
// already there. It returns the path written, or "" when nothing was
// written. Failures are logged and skipped.
func BootstrapConfig(path string) string {
	if _, err := os.Stat(path); err == nil {
		return ""
	}

	body, err := Render(Defaults())
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", filepath.Dir(path), "error", err)
		return ""
	}
	if err := os.WriteFile(path, append([]byte(bootstrapHeader+"\n"), body...), 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return ""
	}

	slog.Info("created default config", "path", path)
	return path
}
