// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/palais-dev/palais/internal/config"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// cli carries state shared by every subcommand of one root command.
type cli struct {
	v *viper.Viper
	// logOutput receives the slog handler output. Defaults to stderr.
	logOutput io.Writer
}

// NewRootCmd creates the root palais command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logOutput: os.Stderr}

	root := &cobra.Command{
		Use:           "palais",
		Short:         "Palais: agent memory knowledge graph",
		Long:          "Palais records what agents observe and learn as a typed graph of memory nodes, linked by similarity and distilled into facts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.initViper(cmd); err != nil {
				return err
			}
			c.setupLogging()
			return nil
		},
	}

	// Global flags. These map to viper keys in initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("server", "", "address of a running palais server (default from networking.listen)")
	root.PersistentFlags().String("token", "", "API token for a running palais server (default from networking.api_token)")

	root.AddCommand(
		c.newStartCmd(),
		c.newMemoryCmd(),
		c.newStatusCmd(),
		c.newConfigCmd(),
		c.newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up defaults, env bindings, flag bindings and the optional
// config file so the usual precedence (flag > env > file > defaults)
// applies everywhere.
func (c *cli) initViper(cmd *cobra.Command) error {
	v := c.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return palaiserr.Errorf(palaiserr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted: with it viper also tries the bare name,
		// which collides with a ./palais binary.
		v.SetConfigName("palais")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/palais")
		v.AddConfigPath("/etc/palais")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return palaiserr.Errorf(palaiserr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
		}
	}

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"storage.data_dir": "data-dir",
		"verbose":          "verbose",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return palaiserr.Errorf(palaiserr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
		}
	}
	return nil
}

func (c *cli) setupLogging() {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(c.v.GetString("logging.level"))); err != nil {
		level = slog.LevelInfo
	}
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(c.logOutput, opts)
	if c.v.GetString("logging.format") == "json" {
		h = slog.NewJSONHandler(c.logOutput, opts)
	}
	slog.SetDefault(slog.New(h))
}
