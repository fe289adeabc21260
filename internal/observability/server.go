// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package observability serves Prometheus metrics and health probes on a
// separate listener from the public API.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

const (
	metricsPath   = "/metrics"
	livenessPath  = "/healthz/liveness"
	readinessPath = "/healthz/readiness"
)

// ReadinessChecker reports whether the account store and listeners are up.
type ReadinessChecker func() bool

// Server serves /metrics and the /healthz probes.
type Server struct {
	addr    string
	logger  *slog.Logger
	metrics *Metrics
	handler http.Handler
	ready   ReadinessChecker

	running  atomic.Bool
	listener net.Listener
	http     *http.Server
}

// NewServer creates a server for addr. The registry is private to the
// server and carries the Go runtime and process collectors next to the
// ideaboard counters. A nil ready reports ready.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:    addr,
		logger:  logger.With("component", "observability"),
		metrics: NewMetrics(reg),
		ready:   ready,
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET "+livenessPath, func(w http.ResponseWriter, _ *http.Request) {
		probe(w, true)
	})
	mux.HandleFunc("GET "+readinessPath, func(w http.ResponseWriter, _ *http.Request) {
		probe(w, s.ready == nil || s.ready())
	})
	s.handler = mux
	return s
}

// Metrics returns the counters the API and token servers record into.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start binds the listener and serves in the background. The returned
// channel yields a serve failure, if any, and is closed once serving ends.
func (s *Server) Start() (<-chan error, error) {
	if s.running.Swap(true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = lis
	s.http = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		err := s.http.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		s.logger.Error("metrics listener failed", "error", err)
		errCh <- oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(err)
	}()

	s.logger.Info("observability listening", "addr", lis.Addr().String())
	return errCh, nil
}

// Stop drains in-flight scrapes. It is a no-op when the server is not running.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("observability stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func probe(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "not ready\n")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}
