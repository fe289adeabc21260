// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/config"
	tokengrpc "github.com/ideaboard/ideaboard/internal/grpc"
	"github.com/ideaboard/ideaboard/internal/mail"
	"github.com/ideaboard/ideaboard/internal/observability"
	idtls "github.com/ideaboard/ideaboard/internal/tls"
	"github.com/ideaboard/ideaboard/internal/web"
)

const shutdownTimeout = 10 * time.Second

// serveAddrs are the bound listener addresses.
type serveAddrs struct {
	HTTP    string
	GRPC    string
	Metrics string
}

// server is the lifecycle shared by the HTTP, gRPC and observability
// servers.
type server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

type namedServer struct {
	name string
	server
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the token gRPC service and the metrics server",
		Long: `Connect to PostgreSQL, then serve the public HTTP API, the internal token
verification gRPC service and the metrics/health endpoints until SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), cmd, cfg)
		},
	}
}

func (a *app) serve(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	logger := a.logger(cfg)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "starting ideaboard",
		"http_addr", cfg.HTTP.Addr,
		"grpc_addr", cfg.GRPC.Addr,
		"metrics_addr", cfg.Metrics.Addr,
	)

	repo, closeRepo, err := a.deps.openRepository(ctx, cfg.Database.URL, logger)
	if err != nil {
		return oops.With("operation", "open account store").Wrap(err)
	}
	defer closeRepo()
	logger.InfoContext(ctx, "connected to database")

	authCfg := cfg.AuthConfig()
	hasher := auth.NewPBKDF2Hasher()
	authOpts := []auth.Option{auth.WithLogger(logger)}

	authSvc, err := auth.NewAuthService(repo, hasher, authCfg, authOpts...)
	if err != nil {
		return err
	}
	verifySvc, err := auth.NewVerificationService(repo, hasher, authCfg, authOpts...)
	if err != nil {
		return err
	}
	tokenSvc, err := auth.NewTokenService(authCfg, authOpts...)
	if err != nil {
		return err
	}

	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}

	var ready atomic.Bool
	obsServer := observability.NewServer(cfg.Metrics.Addr, ready.Load, logger)
	metrics := obsServer.Metrics()
	dispatcher := mail.NewDispatcher(mailer, metrics, logger, mail.DefaultSendTimeout)

	handler, err := web.NewHandler(web.Deps{
		Auth:     authSvc,
		Verify:   verifySvc,
		Tokens:   tokenSvc,
		Notifier: dispatcher,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	grpcOpts := []tokengrpc.ServerOption{
		tokengrpc.WithMetrics(metrics),
		tokengrpc.WithLogger(logger),
	}
	if cfg.GRPC.CertsDir != "" {
		tlsConfig, err := idtls.ServerConfig(cfg.GRPC.CertsDir, idtls.ServerName)
		if err != nil {
			return oops.With("operation", "load grpc tls").Wrap(err)
		}
		grpcOpts = append(grpcOpts, tokengrpc.WithTLS(tlsConfig))
	} else {
		logger.WarnContext(ctx, "grpc.certs_dir not set, token service runs without TLS")
	}
	grpcServer, err := tokengrpc.NewServer(cfg.GRPC.Addr, tokenSvc, grpcOpts...)
	if err != nil {
		return err
	}

	servers := []namedServer{
		{"observability", obsServer},
		{"grpc", grpcServer},
		{"http", web.NewServer(cfg.HTTP.Addr, handler, logger)},
	}

	fatal := make(chan error, len(servers))
	var started []namedServer
	for _, s := range servers {
		errCh, err := s.Start()
		if err != nil {
			stopServers(logger, started)
			closeDispatcher(logger, dispatcher)
			return oops.With("server", s.name).Wrap(err)
		}
		started = append(started, s)
		go forwardServerError(ctx, s.name, errCh, fatal, logger)
	}

	ready.Store(true)
	a.deps.ready(serveAddrs{
		HTTP:    servers[2].Addr(),
		GRPC:    servers[1].Addr(),
		Metrics: servers[0].Addr(),
	})
	cmd.Println("ideaboard started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-fatal:
		runErr = oops.Code("SERVER_FAILED").Wrap(err)
	}

	ready.Store(false)
	stopServers(logger, started)
	closeDispatcher(logger, dispatcher)
	logger.Info("shutdown complete")
	return runErr
}

// newMailer returns an SMTP mailer, or a mailer that only logs when no
// SMTP host is configured.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (mail.Mailer, error) {
	if cfg.Host == "" {
		logger.Warn("mail.host not set, codes will not be delivered")
		return mail.NewLogMailer(logger), nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Product:  "Ideaboard",
	}, logger)
}

// forwardServerError passes the first serve failure of one server on to
// fatal. It returns when errCh closes or ctx is done.
func forwardServerError(ctx context.Context, name string, errCh <-chan error, fatal chan<- error, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			return
		}
		logger.Error("server error, triggering shutdown", "server", name, "error", err)
		fatal <- oops.With("server", name).Wrap(err)
	case <-ctx.Done():
	}
}

// stopServers stops servers in reverse start order.
func stopServers(logger *slog.Logger, servers []namedServer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(ctx); err != nil {
			logger.Warn("error stopping server", "server", servers[i].name, "error", err)
		}
	}
}

func closeDispatcher(logger *slog.Logger, d *mail.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		logger.Warn("pending mail abandoned", "error", err)
	}
}
