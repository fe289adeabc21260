// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package main

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ideaboard/ideaboard/internal/auth"
)

func newCleanupCmd(a *app) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete accounts that never verified an email",
		Long: `Delete every account without a verified email that was created more than
cleanup.unverified_max_age ago. Meant to be run periodically, e.g. from cron.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-age") {
				cfg.Cleanup.UnverifiedMaxAge = maxAge
			}
			logger := a.logger(cfg)
			ctx := cmd.Context()

			repo, closeRepo, err := a.deps.openRepository(ctx, cfg.Database.URL, logger)
			if err != nil {
				return oops.With("operation", "open account store").Wrap(err)
			}
			defer closeRepo()

			svc, err := auth.NewAuthService(repo, auth.NewPBKDF2Hasher(), cfg.AuthConfig(), auth.WithLogger(logger))
			if err != nil {
				return err
			}
			n, err := svc.PurgeUnverified(ctx, cfg.Cleanup.UnverifiedMaxAge)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d unverified account(s) older than %s\n", n, cfg.Cleanup.UnverifiedMaxAge)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "override cleanup.unverified_max_age")
	return cmd
}
