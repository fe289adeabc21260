// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package grpc exposes token verification to internal services over gRPC.
//
// The service uses well-known protobuf types for its messages, so no
// generated code is needed:
//
//	Verify(google.protobuf.StringValue) returns (google.protobuf.Struct)
//	RemainingLifetime(google.protobuf.StringValue) returns (google.protobuf.Duration)
package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/observability"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ideaboard.auth.v1.TokenService"

const (
	verifyMethod   = "/" + ServiceName + "/Verify"
	lifetimeMethod = "/" + ServiceName + "/RemainingLifetime"
)

// Error reasons carried in the ErrorInfo detail of Unauthenticated statuses.
const (
	ReasonTokenExpired = "TOKEN_EXPIRED"
	ReasonTokenInvalid = "TOKEN_INVALID"

	errorDomain = "ideaboard"
)

// TokenVerifier checks session tokens. *auth.TokenService satisfies it.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// tokenService is the handler type registered with the gRPC server.
type tokenService interface {
	Verify(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	RemainingLifetime(ctx context.Context, in *wrapperspb.StringValue) (*durationpb.Duration, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*tokenService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "RemainingLifetime", Handler: lifetimeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ideaboard/auth/v1/token.proto",
}

//nolint:revive // signature fixed by grpc.MethodHandler
func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tokenService).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(tokenService).Verify(ctx, req.(*wrapperspb.StringValue))
	})
}

//nolint:revive // signature fixed by grpc.MethodHandler
func lifetimeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tokenService).RemainingLifetime(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: lifetimeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(tokenService).RemainingLifetime(ctx, req.(*wrapperspb.StringValue))
	})
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTLS serves over TLS. Use a config that requires client certificates
// for mutual TLS.
func WithTLS(cfg *tls.Config) ServerOption {
	return func(s *Server) { s.tlsConfig = cfg }
}

// WithMetrics records one request per RPC on m.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for remaining lifetimes.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server serves the token service and the standard health service.
type Server struct {
	addr      string
	verifier  TokenVerifier
	tlsConfig *tls.Config
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time

	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	running    atomic.Bool
}

// NewServer creates a server for addr backed by verifier.
func NewServer(addr string, verifier TokenVerifier, opts ...ServerOption) (*Server, error) {
	if verifier == nil {
		return nil, oops.Code("GRPC_INVALID_SERVER").Errorf("token verifier is required")
	}
	s := &Server{
		addr:     addr,
		verifier: verifier,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
// Serve failures arrive on the returned channel, which is closed when the
// server stops.
func (s *Server) Start() (<-chan error, error) {
	if s.running.Load() {
		return nil, oops.Errorf("grpc server already running")
	}
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("GRPC_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	return s.serve(lis)
}

func (s *Server) serve(lis net.Listener) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		_ = lis.Close()
		return nil, oops.Errorf("grpc server already running")
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.observe),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if s.tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsConfig)))
	}

	s.grpcServer = grpc.NewServer(opts...)
	s.grpcServer.RegisterService(&serviceDesc, &tokenHandler{verifier: s.verifier, now: s.now, logger: s.logger})

	s.health = health.NewServer()
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.listener = lis
	grpcServer := s.grpcServer

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("grpc server error", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("grpc server started",
		"addr", lis.Addr().String(),
		"tls", s.tlsConfig != nil,
	)
	return errCh, nil
}

// Stop drains in-flight RPCs, forcing the remaining ones closed once ctx
// is done.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
		s.logger.Warn("grpc server forced to stop")
		return oops.With("operation", "stop grpc server").Wrap(ctx.Err())
	}
	s.logger.Info("grpc server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) observe(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	s.metrics.RecordRequest(observability.TransportGRPC, code.String())
	s.logger.DebugContext(ctx, "grpc request",
		"method", info.FullMethod,
		"code", code.String(),
		"duration", time.Since(start),
	)
	return resp, err
}

type tokenHandler struct {
	verifier TokenVerifier
	now      func() time.Time
	logger   *slog.Logger
}

func (h *tokenHandler) Verify(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	claims, err := h.verifier.Verify(in.GetValue())
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	out, err := claimsToStruct(claims)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return out, nil
}

// RemainingLifetime verifies the token before reading exp, so a forged
// expiry is never reported.
func (h *tokenHandler) RemainingLifetime(ctx context.Context, in *wrapperspb.StringValue) (*durationpb.Duration, error) {
	claims, err := h.verifier.Verify(in.GetValue())
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	if claims.ExpiresAt == nil {
		return nil, h.toStatus(ctx, auth.ErrInvalidToken)
	}
	return durationpb.New(claims.ExpiresAt.Sub(h.now())), nil
}

func (h *tokenHandler) toStatus(ctx context.Context, err error) error {
	var (
		code   = codes.Unauthenticated
		reason string
	)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		reason = ReasonTokenExpired
	case errors.Is(err, auth.ErrInvalidToken):
		reason = ReasonTokenInvalid
	default:
		h.logger.ErrorContext(ctx, "token rpc failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}

	st, detailErr := status.New(code, "token rejected").WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: errorDomain,
	})
	if detailErr != nil {
		return status.Error(code, reason)
	}
	return st.Err()
}

func claimsToStruct(c *auth.Claims) (*structpb.Struct, error) {
	fields := map[string]any{
		"username":   c.Username,
		"verified":   c.Verified,
		"givenName":  optional(c.GivenName),
		"familyName": optional(c.FamilyName),
	}
	if c.ExpiresAt != nil {
		fields["exp"] = c.ExpiresAt.Unix()
	}
	if c.IssuedAt != nil {
		fields["iat"] = c.IssuedAt.Unix()
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, oops.Code("GRPC_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
