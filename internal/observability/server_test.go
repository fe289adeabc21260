// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready, nil)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
		http.DefaultClient.CloseIdleConnections()
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, nil)

	m := server.Metrics()
	m.RecordRequest(TransportHTTP, "200")
	m.RecordRequest(TransportHTTP, "200")
	m.RecordAuthAttempt("failure")
	m.RecordCodeIssued(CodeKindReset)
	m.RecordCodeConsumed(CodeKindReset, "invalid")
	m.RecordTokenIssued()
	m.RecordMailFailure(CodeKindEmail)

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `ideaboard_requests_total{status="200",transport="http"} 2`)
	assert.Contains(t, body, `ideaboard_auth_attempts_total{result="failure"} 1`)
	assert.Contains(t, body, `ideaboard_codes_issued_total{kind="password_reset"} 1`)
	assert.Contains(t, body, `ideaboard_codes_consumed_total{kind="password_reset",result="invalid"} 1`)
	assert.Contains(t, body, "ideaboard_tokens_issued_total 1")
	assert.Contains(t, body, `ideaboard_mail_failures_total{kind="email_verification"} 1`)
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(TransportGRPC, "OK")
		m.RecordAuthAttempt("success")
		m.RecordCodeIssued(CodeKindEmail)
		m.RecordCodeConsumed(CodeKindEmail, "ok")
		m.RecordTokenIssued()
		m.RecordMailFailure(CodeKindReset)
	})
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RecordTokenIssued()
	a.RecordMailFailure(CodeKindReset)
	assert.InDelta(t, 1, testutil.ToFloat64(a.TokensIssuedTotal), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.TokensIssuedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(a.MailFailuresTotal.WithLabelValues(CodeKindReset)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.MailFailuresTotal.WithLabelValues(CodeKindReset)), 0)
}

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness", nil, "/healthz/liveness", http.StatusOK, "ok"},
		{"ready", func() bool { return true }, "/healthz/readiness", http.StatusOK, "ok"},
		{"nil checker is ready", nil, "/healthz/readiness", http.StatusOK, "ok"},
		{"not ready", func() bool { return false }, "/healthz/readiness", http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, server, tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_Lifecycle(t *testing.T) {
	t.Run("double start fails", func(t *testing.T) {
		server := startServer(t, nil)
		_, err := server.Start()
		assert.Error(t, err)
	})

	t.Run("stop without start", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil, nil)
		assert.NoError(t, server.Stop(context.Background()))
		assert.Empty(t, server.Addr())
	})

	t.Run("serve error reaches channel", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil, nil)
		errCh, err := server.Start()
		require.NoError(t, err)
		require.NoError(t, server.listener.Close())

		select {
		case serveErr := <-errCh:
			assert.Error(t, serveErr)
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for serve error")
		}
		_ = server.Stop(context.Background())
	})

	t.Run("channel closes on shutdown", func(t *testing.T) {
		server := NewServer("127.0.0.1:0", nil, nil)
		errCh, err := server.Start()
		require.NoError(t, err)
		require.NoError(t, server.Stop(context.Background()))

		select {
		case err, ok := <-errCh:
			if ok {
				assert.NoError(t, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for channel close")
		}
	})

	t.Run("bad address", func(t *testing.T) {
		server := NewServer("256.0.0.1:99999", nil, nil)
		_, err := server.Start()
		require.Error(t, err)
		_, err = server.Start()
		require.Error(t, err, "failed start leaves the server startable")
	})
}
