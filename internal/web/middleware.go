// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/observability"
)

type contextKey int

const (
	accountKey contextKey = iota
	claimsKey
	tokenKey
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts and logs every request.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.metrics.RecordRequest(observability.TransportHTTP, strconv.Itoa(rec.status))
		h.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// requireBasic authenticates the Basic-Auth header. Every failure,
// including a malformed header, gets the same 401.
func (h *Handler) requireBasic(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			h.metrics.RecordAuthAttempt("failure")
			writeUnauthorized(w)
			return
		}

		result, err := h.auth.Authenticate(r.Context(), username, password)
		if err != nil {
			h.metrics.RecordAuthAttempt("error")
			h.writeError(w, r, err, notFoundAsNotFound)
			return
		}
		if !result.Authenticated {
			h.metrics.RecordAuthAttempt("failure")
			writeUnauthorized(w)
			return
		}

		h.metrics.RecordAuthAttempt("success")
		ctx := context.WithValue(r.Context(), accountKey, result.Account)
		next(w, r.WithContext(ctx))
	}
}

// requireBearer verifies the bearer token.
func (h *Handler) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			h.writeError(w, r, err, notFoundAsNotFound)
			return
		}
		claims, err := h.tokens.Verify(token)
		if err != nil {
			h.writeError(w, r, err, notFoundAsNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, tokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", oops.Code("TOKEN_MISSING").Wrap(auth.ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

func accountFrom(ctx context.Context) *auth.Account {
	account, _ := ctx.Value(accountKey).(*auth.Account)
	return account
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
