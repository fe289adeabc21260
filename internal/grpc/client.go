// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package grpc

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ideaboard/ideaboard/internal/auth"
)

// ClientConfig holds configuration for the token client.
type ClientConfig struct {
	// Address is the target server, e.g. "localhost:9000".
	Address string

	// TLSConfig enables (mutual) TLS. If nil the connection is insecure.
	TLSConfig *tls.Config

	// KeepaliveTime is how often to ping the server (default: 10s).
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for a ping response (default: 5s).
	KeepaliveTimeout time.Duration

	// Dialer overrides how connections are made. Tests use it with bufconn.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// Client calls the token service.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewClient creates a client. The connection is made lazily on first call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, oops.Code("GRPC_INVALID_CLIENT").Errorf("address is required")
	}
	if cfg.KeepaliveTime == 0 {
		cfg.KeepaliveTime = 10 * time.Second
	}
	if cfg.KeepaliveTimeout == 0 {
		cfg.KeepaliveTimeout = 5 * time.Second
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(cfg.TLSConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if cfg.Dialer != nil {
		opts = append(opts, grpc.WithContextDialer(cfg.Dialer))
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, oops.Code("GRPC_CONNECT_FAILED").With("address", cfg.Address).Wrap(err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return oops.With("operation", "close grpc client").Wrap(err)
	}
	return nil
}

// Verify returns the claims of a valid token. Rejected tokens yield errors
// matching auth.ErrInvalidToken or auth.ErrExpiredToken.
func (c *Client) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, verifyMethod, wrapperspb.String(token), out); err != nil {
		return nil, fromStatus(err)
	}
	return structToClaims(out), nil
}

// RemainingLifetime returns how long a valid token has left.
func (c *Client) RemainingLifetime(ctx context.Context, token string) (time.Duration, error) {
	out := new(durationpb.Duration)
	if err := c.conn.Invoke(ctx, lifetimeMethod, wrapperspb.String(token), out); err != nil {
		return 0, fromStatus(err)
	}
	return out.AsDuration(), nil
}

// Healthy reports whether the token service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, oops.Code("GRPC_HEALTH_FAILED").Wrap(err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return oops.Code("TOKEN_RPC_FAILED").Wrap(err)
	}
	if st.Code() != codes.Unauthenticated {
		return oops.Code("TOKEN_RPC_FAILED").With("grpc_code", st.Code().String()).Wrap(err)
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetReason() == ReasonTokenExpired {
			return oops.Code("TOKEN_EXPIRED").Wrap(auth.ErrExpiredToken)
		}
	}
	return oops.Code("TOKEN_INVALID").Wrap(auth.ErrInvalidToken)
}

func structToClaims(s *structpb.Struct) *auth.Claims {
	f := s.GetFields()
	claims := &auth.Claims{
		Username:   f["username"].GetStringValue(),
		Verified:   f["verified"].GetBoolValue(),
		GivenName:  optionalString(f["givenName"]),
		FamilyName: optionalString(f["familyName"]),
	}
	if v, ok := f["exp"]; ok {
		claims.ExpiresAt = jwt.NewNumericDate(time.Unix(int64(v.GetNumberValue()), 0))
	}
	if v, ok := f["iat"]; ok {
		claims.IssuedAt = jwt.NewNumericDate(time.Unix(int64(v.GetNumberValue()), 0))
	}
	return claims
}

func optionalString(v *structpb.Value) *string {
	if v == nil {
		return nil
	}
	if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
		return nil
	}
	s := v.GetStringValue()
	return &s
}
