// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/ideaboard/ideaboard/internal/config"
	"github.com/ideaboard/ideaboard/internal/schema"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check a YAML config file against the config schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateFile(args[0]); err != nil {
				cmd.PrintErrf("%s: %s\n", args[0], schema.FormatError(err))
				return err
			}
			cmd.Printf("%s: ok\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load the effective configuration and report every problem",
		Long: `Layer defaults, --config, IDEABOARD_* environment variables and flags,
then validate the result the same way serve does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.loadConfig(cmd); err != nil {
				return err
			}
			cmd.Println("configuration ok")
			return nil
		},
	})
	return cmd
}
