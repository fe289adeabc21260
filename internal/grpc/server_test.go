// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package grpc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/observability"
	idtls "github.com/ideaboard/ideaboard/internal/tls"
	"github.com/ideaboard/ideaboard/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingVerifier struct{}

func (failingVerifier) Verify(string) (*auth.Claims, error) {
	return nil, errors.New("database password leaked here")
}

type fixture struct {
	tokens  *auth.TokenService
	clock   *clock
	metrics *observability.Metrics
	logs    *bytes.Buffer
	client  *Client
}

func strPtr(s string) *string { return &s }

// newFixture serves the token service on an in-memory listener.
func newFixture(t *testing.T, verifier TokenVerifier) *fixture {
	t.Helper()
	f := &fixture{
		clock:   &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
	}
	tokens, err := auth.NewTokenService(auth.Config{
		TokenSecret:     []byte(strings.Repeat("k", auth.MinTokenSecretLen)),
		TokenExpiration: 3 * time.Hour,
	}, auth.WithClock(f.clock.Now))
	require.NoError(t, err)
	f.tokens = tokens
	if verifier == nil {
		verifier = tokens
	}

	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv, err := NewServer("bufnet", verifier,
		WithMetrics(f.metrics),
		WithLogger(logger),
		WithClock(f.clock.Now),
	)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	errCh, err := srv.serve(lis)
	require.NoError(t, err)

	client, err := NewClient(ClientConfig{
		Address: "passthrough:///bufnet",
		Dialer: func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		},
	})
	require.NoError(t, err)
	f.client = client

	t.Cleanup(func() {
		require.NoError(t, client.Close())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
		for range errCh {
		}
	})
	return f
}

func (f *fixture) sign(t *testing.T, account *auth.Account) string {
	t.Helper()
	token, err := f.tokens.Sign(account)
	require.NoError(t, err)
	return token
}

func TestVerify_ReturnsClaims(t *testing.T) {
	f := newFixture(t, nil)
	token := f.sign(t, &auth.Account{
		Username:  "ada",
		Email:     strPtr("ada@example.com"),
		GivenName: strPtr("Ada"),
	})

	claims, err := f.client.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ada", claims.Username)
	assert.True(t, claims.Verified)
	require.NotNil(t, claims.GivenName)
	assert.Equal(t, "Ada", *claims.GivenName)
	assert.Nil(t, claims.FamilyName)
	require.NotNil(t, claims.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(3*time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.Equal(t, f.clock.Now().Unix(), claims.IssuedAt.Unix())
}

func TestVerify_UnverifiedAccount(t *testing.T) {
	f := newFixture(t, nil)
	token := f.sign(t, &auth.Account{Username: "bob", PendingEmail: strPtr("bob@example.com")})

	claims, err := f.client.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, claims.Verified)
}

func TestVerify_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	good := f.sign(t, &auth.Account{Username: "ada"})

	other, err := auth.NewTokenService(auth.Config{
		TokenSecret:     []byte(strings.Repeat("x", auth.MinTokenSecretLen)),
		TokenExpiration: time.Hour,
	})
	require.NoError(t, err)
	forged, err := other.Sign(&auth.Account{Username: "ada"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"tampered", good[:len(good)-2] + "xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.client.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
			errutil.AssertErrorCode(t, err, "TOKEN_INVALID")
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	f := newFixture(t, nil)
	token := f.sign(t, &auth.Account{Username: "ada"})
	f.clock.Advance(3*time.Hour + time.Second)

	_, err := f.client.Verify(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)
	errutil.AssertErrorCode(t, err, "TOKEN_EXPIRED")
}

func TestRemainingLifetime(t *testing.T) {
	f := newFixture(t, nil)
	token := f.sign(t, &auth.Account{Username: "ada"})

	remaining, err := f.client.RemainingLifetime(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, remaining)

	f.clock.Advance(time.Hour)
	remaining, err = f.client.RemainingLifetime(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, remaining)

	f.clock.Advance(2*time.Hour + time.Second)
	_, err = f.client.RemainingLifetime(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	f := newFixture(t, failingVerifier{})

	_, err := f.client.Verify(context.Background(), "anything")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "TOKEN_RPC_FAILED")
	errutil.AssertErrorContext(t, err, "grpc_code", "Internal")
	assert.NotContains(t, err.Error(), "database password")
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)

	assert.Contains(t, f.logs.String(), "token rpc failed")
}

func TestRequestsAreCounted(t *testing.T) {
	f := newFixture(t, nil)
	token := f.sign(t, &auth.Account{Username: "ada"})

	_, err := f.client.Verify(context.Background(), token)
	require.NoError(t, err)
	_, err = f.client.RemainingLifetime(context.Background(), token)
	require.NoError(t, err)
	_, err = f.client.Verify(context.Background(), "bad")
	require.Error(t, err)

	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues(observability.TransportGRPC, "OK")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues(observability.TransportGRPC, "Unauthenticated")), 0)
}

func TestTokensNeverLogged(t *testing.T) {
	f := newFixture(t, nil)
	token := f.sign(t, &auth.Account{Username: "ada"})

	_, err := f.client.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.NotContains(t, f.logs.String(), token)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	ok, err := f.client.Healthy(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewServer_RequiresVerifier(t *testing.T) {
	_, err := NewServer(":0", nil)
	errutil.AssertErrorCode(t, err, "GRPC_INVALID_SERVER")
}

func TestNewClient_RequiresAddress(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	errutil.AssertErrorCode(t, err, "GRPC_INVALID_CLIENT")
}

func TestServer_MutualTLS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, idtls.GenerateAll(dir))

	serverTLS, err := idtls.ServerConfig(dir, idtls.ServerName)
	require.NoError(t, err)
	clientTLS, err := idtls.ClientConfig(dir, idtls.ClientName, "localhost")
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(auth.Config{
		TokenSecret:     []byte(strings.Repeat("k", auth.MinTokenSecretLen)),
		TokenExpiration: time.Hour,
	})
	require.NoError(t, err)
	token, err := tokens.Sign(&auth.Account{Username: "ada"})
	require.NoError(t, err)

	srv, err := NewServer("127.0.0.1:0", tokens, WithTLS(serverTLS), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	errCh, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Stop(ctx))
		for range errCh {
		}
	})

	t.Run("trusted client", func(t *testing.T) {
		client, err := NewClient(ClientConfig{Address: srv.Addr(), TLSConfig: clientTLS})
		require.NoError(t, err)
		defer client.Close()

		claims, err := client.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "ada", claims.Username)
	})

	t.Run("client without certificate", func(t *testing.T) {
		noCert := clientTLS.Clone()
		noCert.Certificates = nil
		client, err := NewClient(ClientConfig{Address: srv.Addr(), TLSConfig: noCert})
		require.NoError(t, err)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err = client.Verify(ctx, token)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "TOKEN_RPC_FAILED")
	})

	t.Run("plaintext client", func(t *testing.T) {
		client, err := NewClient(ClientConfig{Address: srv.Addr()})
		require.NoError(t, err)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err = client.Verify(ctx, token)
		require.Error(t, err)
	})
}

func TestServer_StopIsIdempotent(t *testing.T) {
	tokens, err := auth.NewTokenService(auth.Config{
		TokenSecret:     []byte(strings.Repeat("k", auth.MinTokenSecretLen)),
		TokenExpiration: time.Hour,
	})
	require.NoError(t, err)
	srv, err := NewServer("127.0.0.1:0", tokens, WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	assert.Empty(t, srv.Addr())

	errCh, err := srv.Start()
	require.NoError(t, err)
	_, err = srv.Start()
	require.Error(t, err)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))
	_, open := <-errCh
	assert.False(t, open)
}

func TestServer_ListenFailure(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	srv, err := NewServer(lis.Addr().String(), failingVerifier{})
	require.NoError(t, err)
	_, err = srv.Start()
	errutil.AssertErrorCode(t, err, "GRPC_LISTEN_FAILED")
}
