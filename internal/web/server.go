// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Server runs the public API listener.
type Server struct {
	logger *slog.Logger
	srv    *http.Server

	mu      sync.Mutex
	lis     net.Listener
	stopped bool
}

// NewServer creates a server that will serve handler on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	return &Server{
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
			MaxHeaderBytes:    16 << 10,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}
}

// Start binds the listener and serves in the background. A serve failure
// is sent on the returned channel; the channel closes when serving stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("http server already running")
	}

	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.srv.Addr).Wrap(err)
	}
	s.lis = lis

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api listener failed", "error", err)
			errCh <- oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	}()

	s.logger.Info("api listening", "addr", lis.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx is done. Stopping a server that
// is not running does nothing.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.lis == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}
