// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	idtls "github.com/ideaboard/ideaboard/internal/tls"
	"github.com/ideaboard/ideaboard/internal/xdg"
)

func newCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the mTLS certificates of the token gRPC service",
	}

	var (
		dir   string
		hosts []string
		force bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create a CA plus token server and client certificates",
		Long: `Write root-ca, token-server and token-client certificates and keys to
--dir. Point grpc.certs_dir at the directory to serve with mutual TLS, and
give internal clients the CA and token-client pair.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				var err error
				if dir, err = xdg.CertsDir(); err != nil {
					return err
				}
			}
			if !force {
				if _, err := os.Stat(filepath.Join(dir, "root-ca.crt")); err == nil {
					return oops.Code("CERT_EXISTS").
						With("dir", dir).
						Errorf("certificates already exist, use --force to replace them")
				}
			}
			if err := idtls.GenerateAll(dir, hosts...); err != nil {
				return err
			}
			cmd.Printf("Certificates written to %s\n", dir)
			return nil
		},
	}
	generate.Flags().StringVar(&dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/ideaboard/certs)")
	generate.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS name or IP for the server certificate (repeatable)")
	generate.Flags().BoolVar(&force, "force", false, "overwrite existing certificates")

	cmd.AddCommand(generate)
	return cmd
}
