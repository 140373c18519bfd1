// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/xdg"
)

// cli carries state shared by every subcommand.
type cli struct {
	configFile string
	deps       *Deps
}

// NewRootCmd creates the root command for the keyward CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "keyward",
		Short: "Keyward - account registration, login and lockout",
		Long: `Keyward registers accounts, verifies credentials, issues session
tokens and locks out source addresses after repeated failed logins.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/keyward/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newMigrateCmd(c))
	cmd.AddCommand(newAccountCmd(c))
	cmd.AddCommand(newLockoutCmd(c))

	return cmd
}

// load reads the configuration and builds the command logger.
func (c *cli) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path := c.configFile
	if path == "" {
		var err error
		if path, err = xdg.DefaultConfigFile(); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup("keyward", version, cfg.Log.Format, level, cmd.ErrOrStderr())
	return cfg, logger, nil
}
