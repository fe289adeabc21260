// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package config

import "github.com/spf13/pflag"

// flagKeys maps flag names to config keys. Flags not listed here are
// ignored by Load.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"grpc-addr":    "grpc.addr",
	"grpc-certs":   "grpc.certs_dir",
	"metrics-addr": "metrics.addr",
}

// BindFlags registers the overridable settings on fs. Defaults shown in
// help come from Default; only flags the user sets take effect.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", d.Database.URL, "PostgreSQL connection URL")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("http-addr", d.HTTP.Addr, "HTTP API listen address")
	fs.String("grpc-addr", d.GRPC.Addr, "gRPC listen address")
	fs.String("grpc-certs", d.GRPC.CertsDir, "directory with gRPC mTLS certificates (empty serves plaintext)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address")
}
