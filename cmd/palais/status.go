// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palais-dev/palais/internal/provider"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server and provider status",
		Long:  "Query the running server's status endpoint and display provider health.",
		Args:  cobra.NoArgs,
		RunE:  c.runStatus,
	}
}

func (c *cli) runStatus(cmd *cobra.Command, _ []string) error {
	client, err := c.client(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var body struct {
		Status    string            `json:"status"`
		Providers []provider.Status `json:"providers"`
	}
	if err := client.getJSON(cmd.Context(), memoryPath+"/status", &body); err != nil {
		if palaiserr.HasCode(err, palaiserr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", client.baseURL)
			return nil
		}
		return err
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s\n", client.baseURL, body.Status)
	if len(body.Providers) == 0 {
		_, _ = fmt.Fprintln(out, "No providers configured.")
		return nil
	}
	for _, p := range body.Providers {
		state := "available"
		if !p.Available {
			state = "unavailable"
		}
		_, _ = fmt.Fprintf(out, "  %-12s %-11s breaker=%s capabilities=%s\n",
			p.Provider, state, p.Breaker, strings.Join(p.Capabilities, ","))
	}
	return nil
}
