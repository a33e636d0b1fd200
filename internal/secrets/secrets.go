// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

// Package secrets keeps provider API keys out of config files. A config
// value of the form keyring://service/key is replaced at startup with the
// secret stored in the OS keyring.
package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// DefaultService is the keyring service used by the CLI.
const DefaultService = "palais"

const uriScheme = "keyring://"

// Store reads and writes secrets.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// KeyringStore is a Store backed by the OS keyring (Keychain, Secret
// Service or Credential Manager).
type KeyringStore struct{}

var _ Store = KeyringStore{}

func (KeyringStore) Get(service, key string) (string, error) {
	if err := checkRef(service, key); err != nil {
		return "", err
	}
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", palaiserr.Errorf(palaiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", palaiserr.Wrapf(err, palaiserr.CodeSecretStoreFailure, "reading secret %s/%s", service, key)
	}
	return v, nil
}

func (KeyringStore) Set(service, key, value string) error {
	if err := checkRef(service, key); err != nil {
		return err
	}
	if value == "" {
		return palaiserr.New(palaiserr.CodeSecretInvalidInput, "secret value must not be empty")
	}
	if err := keyring.Set(service, key, value); err != nil {
		return palaiserr.Wrapf(err, palaiserr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (KeyringStore) Delete(service, key string) error {
	if err := checkRef(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return palaiserr.Errorf(palaiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return palaiserr.Wrapf(err, palaiserr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}

func checkRef(service, key string) error {
	if service == "" || key == "" {
		return palaiserr.New(palaiserr.CodeSecretInvalidInput, "secret service and key must not be empty")
	}
	return nil
}

// IsRef reports whether value is a keyring:// reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, uriScheme)
}

// Ref builds the keyring:// reference for a stored secret.
func Ref(service, key string) string {
	return uriScheme + service + "/" + key
}

// ParseRef splits keyring://service/key into its parts.
func ParseRef(ref string) (service, key string, err error) {
	rest, ok := strings.CutPrefix(ref, uriScheme)
	if !ok {
		return "", "", palaiserr.Errorf(palaiserr.CodeSecretInvalidInput, "not a keyring reference: %q", ref)
	}
	service, key, ok = strings.Cut(rest, "/")
	if !ok || service == "" || key == "" {
		return "", "", palaiserr.Errorf(palaiserr.CodeSecretInvalidInput,
			"invalid keyring reference %q: expected keyring://service/key", ref)
	}
	return service, key, nil
}

// Resolve returns the secret a reference points at, or value unchanged when
// it is not a reference.
func Resolve(s Store, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	service, key, err := ParseRef(value)
	if err != nil {
		return "", err
	}
	secret, err := s.Get(service, key)
	if err != nil {
		return "", palaiserr.Wrapf(err, palaiserr.CodeSecretResolveFailure, "resolving %s", value)
	}
	return secret, nil
}

// ResolveAll resolves every reference in place. All failures are reported.
func ResolveAll(s Store, values ...*string) error {
	var errs []error
	for _, v := range values {
		resolved, err := Resolve(s, *v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*v = resolved
	}
	return palaiserr.Join(errs...)
}
