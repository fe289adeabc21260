// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package config loads ideaboard settings from defaults, a YAML file,
// IDEABOARD_* environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/schema"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "IDEABOARD_"

// Config is the complete process configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" envPrefix:"DATABASE_"`
	Log      LogConfig      `koanf:"log" envPrefix:"LOG_"`
	HTTP     ListenConfig   `koanf:"http" envPrefix:"HTTP_"`
	GRPC     GRPCConfig     `koanf:"grpc" envPrefix:"GRPC_"`
	Metrics  ListenConfig   `koanf:"metrics" envPrefix:"METRICS_"`
	Auth     AuthConfig     `koanf:"auth" envPrefix:"AUTH_"`
	Mail     MailConfig     `koanf:"mail" envPrefix:"MAIL_"`
	Cleanup  CleanupConfig  `koanf:"cleanup" envPrefix:"CLEANUP_"`
}

// DatabaseConfig locates PostgreSQL.
type DatabaseConfig struct {
	URL string `koanf:"url" env:"URL" jsonschema:"description=PostgreSQL connection URL"`
}

// LogConfig selects the log encoding and threshold.
type LogConfig struct {
	Format string `koanf:"format" env:"FORMAT" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" env:"LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ListenConfig is a TCP listen address.
type ListenConfig struct {
	Addr string `koanf:"addr" env:"ADDR"`
}

// GRPCConfig is the internal token service listener. An empty CertsDir
// serves plaintext, which is only sensible on loopback.
type GRPCConfig struct {
	Addr     string `koanf:"addr" env:"ADDR"`
	CertsDir string `koanf:"certs_dir" env:"CERTS_DIR" jsonschema:"description=Directory holding the mTLS CA and token-server certificate"`
}

// AuthConfig holds the credential settings.
type AuthConfig struct {
	Iterations      int           `koanf:"iterations" env:"ITERATIONS" jsonschema:"minimum=1"`
	CodeTTL         time.Duration `koanf:"code_ttl" env:"CODE_TTL"`
	TokenSecret     string        `koanf:"token_secret" env:"TOKEN_SECRET"`
	TokenExpiration time.Duration `koanf:"token_expiration" env:"TOKEN_EXPIRATION"`
}

// MailConfig configures SMTP delivery. An empty Host disables SMTP.
type MailConfig struct {
	Host     string `koanf:"host" env:"HOST"`
	Port     int    `koanf:"port" env:"PORT" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username" env:"USERNAME"`
	Password string `koanf:"password" env:"PASSWORD"`
	From     string `koanf:"from" env:"FROM"`
}

// CleanupConfig controls the unverified-account purge.
type CleanupConfig struct {
	UnverifiedMaxAge time.Duration `koanf:"unverified_max_age" env:"UNVERIFIED_MAX_AGE"`
}

// Default returns the built-in settings. TokenSecret and Database.URL are
// left empty and must be supplied.
func Default() Config {
	return Config{
		Log:     LogConfig{Format: "json", Level: "info"},
		HTTP:    ListenConfig{Addr: ":8080"},
		GRPC:    GRPCConfig{Addr: "127.0.0.1:9000"},
		Metrics: ListenConfig{Addr: "127.0.0.1:9100"},
		Auth: AuthConfig{
			Iterations:      auth.DefaultIterations,
			CodeTTL:         auth.DefaultCodeTTL,
			TokenExpiration: auth.DefaultTokenExpiration,
		},
		Mail:    MailConfig{Port: 587},
		Cleanup: CleanupConfig{UnverifiedMaxAge: 72 * time.Hour},
	}
}

// Load layers path (if non-empty), the environment and the changed flags
// in fs (if non-nil) over Default. The result is not validated.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read config file").
				With("path", path).
				Wrap(err)
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "decode config file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "parse environment").
			Wrap(err)
	}

	if fs != nil {
		k := koanf.New(".")
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read flags").
				Wrap(err)
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "decode flags").
				Wrap(err)
		}
	}

	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	for name, addr := range map[string]string{
		"http.addr":    c.HTTP.Addr,
		"grpc.addr":    c.GRPC.Addr,
		"metrics.addr": c.Metrics.Addr,
	} {
		if addr == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	errs = append(errs, c.AuthConfig().Problems()...)
	if c.Mail.Host != "" {
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			errs = append(errs, fmt.Errorf("mail.port out of range: %d", c.Mail.Port))
		}
		if c.Mail.From == "" {
			errs = append(errs, errors.New("mail.from is required when mail.host is set"))
		}
	}
	if c.Cleanup.UnverifiedMaxAge <= 0 {
		errs = append(errs, errors.New("cleanup.unverified_max_age must be positive"))
	}
	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").Wrap(errors.Join(errs...))
	}
	return nil
}

// AuthConfig converts the auth section to the form the credential
// services take.
func (c Config) AuthConfig() auth.Config {
	return auth.Config{
		Iterations:      c.Auth.Iterations,
		CodeTTL:         c.Auth.CodeTTL,
		TokenSecret:     []byte(c.Auth.TokenSecret),
		TokenExpiration: c.Auth.TokenExpiration,
	}
}

// Schema is the JSON Schema of a config file.
var Schema = schema.MustReflect(&Config{},
	schema.WithFieldTag("koanf"),
	schema.WithID("https://ideaboard.dev/schemas/config.schema.json"),
	schema.WithTitle("Ideaboard configuration", "Schema for ideaboard YAML config files"),
)

// ValidateFile checks the YAML file at path against Schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "read config file").
			With("path", path).
			Wrap(err)
	}
	if err := Schema.ValidateYAML(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}
