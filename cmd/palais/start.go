// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/palais-dev/palais/internal/config"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

func (c *cli) newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the palais server",
		Long:  "Load configuration, open the stores, connect providers and serve the memory API until interrupted.",
		RunE:  c.runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().Bool("auto-extract", false, "extract facts from every new episodic node")
	_ = c.v.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))
	_ = c.v.BindPFlag("memory.auto_extract", cmd.Flags().Lookup("auto-extract"))

	return cmd
}

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(secretStoreFactory()); err != nil {
		return nil, palaiserr.Wrap(err, palaiserr.CodeSecretResolveFailure, "resolving secrets")
	}
	return cfg, nil
}

func (c *cli) runStart(cmd *cobra.Command, _ []string) error {
	if c.v.ConfigFileUsed() == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			config.BootstrapConfig(path)
		}
	}
	config.WarnInsecurePermissions(c.v.ConfigFileUsed())

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := WireApp(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting palais",
		"listen", cfg.Networking.Listen,
		"vector_backend", cfg.Vector.Backend,
		"embeddings", app.Embeddings(),
		"extraction", app.Extraction(),
	)
	return app.Start(ctx)
}
