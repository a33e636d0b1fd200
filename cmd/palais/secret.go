// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palais-dev/palais/internal/secrets"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.KeyringStore{}
}

func (c *cli) newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage credentials stored in the OS keyring",
		Long: "Store and delete credentials under the palais service in the operating system keyring. " +
			"Reference them from the config file as keyring://palais/<name>.",
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret, read from --value or the first line of stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			value, _ := cmd.Flags().GetString("value")
			if value == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return palaiserr.Errorf(palaiserr.CodeCLIInputInvalid, "reading secret from stdin: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return palaiserr.New(palaiserr.CodeCLIInputInvalid, "secret value is empty")
			}

			if err := secretStoreFactory().Set(secrets.DefaultService, name, value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s\nReference: %s\n", name, secrets.Ref(secrets.DefaultService, name))
			return nil
		},
	}
	cmd.Flags().String("value", "", "secret value (prefer stdin to keep it out of shell history)")
	return cmd
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := secretStoreFactory().Delete(secrets.DefaultService, name); err != nil {
				if palaiserr.HasCode(err, palaiserr.CodeSecretNotFound) {
					return palaiserr.Errorf(palaiserr.CodeSecretNotFound, "secret %q not found", name)
				}
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
			return nil
		},
	}
}
