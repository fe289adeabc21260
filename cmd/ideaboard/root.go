// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/auth/postgres"
	"github.com/ideaboard/ideaboard/internal/config"
	"github.com/ideaboard/ideaboard/internal/logging"
	"github.com/ideaboard/ideaboard/internal/store"
	"github.com/ideaboard/ideaboard/internal/xdg"
)

const serviceName = "ideaboard"

// deps holds the factories commands reach the outside world through.
// Tests replace them; nil fields fall back to the real implementations.
type deps struct {
	// openRepository connects to the account store. The returned func
	// releases it.
	openRepository func(ctx context.Context, databaseURL string, logger *slog.Logger) (auth.AccountRepository, func(), error)

	// openMigrator opens the schema migrator.
	openMigrator func(databaseURL string) (migrator, error)

	// logOutput receives log lines. nil means stderr.
	logOutput io.Writer

	// ready is called once serve is accepting connections.
	ready func(serveAddrs)

	// defaultConfigFile names the file read when --config is not given.
	defaultConfigFile func() string
}

func (d *deps) withDefaults() *deps {
	out := *d
	if out.openRepository == nil {
		out.openRepository = openPostgresRepository
	}
	if out.openMigrator == nil {
		out.openMigrator = func(databaseURL string) (migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ready == nil {
		out.ready = func(serveAddrs) {}
	}
	if out.defaultConfigFile == nil {
		out.defaultConfigFile = xdg.DefaultConfigFile
	}
	return &out
}

func openPostgresRepository(ctx context.Context, databaseURL string, logger *slog.Logger) (auth.AccountRepository, func(), error) {
	opts := store.DefaultConnectOptions()
	opts.Logger = logger
	pool, err := store.Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewAccountRepository(pool), pool.Close, nil
}

// app carries the state shared by all subcommands.
type app struct {
	configFile string
	deps       *deps
}

// NewRootCmd creates the root command for the ideaboard CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&deps{})
}

func newRootCmd(d *deps) *cobra.Command {
	a := &app{deps: d.withDefaults()}

	cmd := &cobra.Command{
		Use:   "ideaboard",
		Short: "Ideaboard credential service",
		Long: `Ideaboard manages user accounts: password hashing, password reset and
email verification codes, and signed session tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/ideaboard/config.yaml if present)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newCleanupCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newCertsCmd())

	return cmd
}

func (a *app) configPath() string {
	if a.configFile != "" {
		return a.configFile
	}
	return a.deps.defaultConfigFile()
}

// loadConfig layers the config file, environment and flags of cmd and
// validates the result.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(a.configPath(), cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// loadDatabaseConfig is loadConfig for commands that only talk to the
// database and need no token secret.
func (a *app) loadDatabaseConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(a.configPath(), cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Database.URL == "" {
		return config.Config{}, oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	return cfg, nil
}

func (a *app) logger(cfg config.Config) *slog.Logger {
	return logging.Setup(serviceName, version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), a.deps.logOutput)
}
