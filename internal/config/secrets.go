// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package config

import (
	"github.com/palais-dev/palais/internal/secrets"
)

// ResolveSecrets replaces keyring:// references in credential fields with
// the stored secrets. Every unresolvable reference is reported.
func (c *Config) ResolveSecrets(s secrets.Store) error {
	fields := []*string{&c.Networking.APIToken, &c.Vector.APIKey}

	resolved := make(map[string]*ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		resolved[name] = &p
		fields = append(fields, &p.APIKey)
	}

	err := secrets.ResolveAll(s, fields...)
	for name, p := range resolved {
		c.Providers[name] = *p
	}
	return err
}
