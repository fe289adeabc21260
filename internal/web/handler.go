// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package web is the public HTTP API over the credential services.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/internal/observability"
)

// Notifier delivers issued codes. *mail.Dispatcher satisfies it.
type Notifier interface {
	ResetCode(ctx context.Context, issued *auth.IssuedCode)
	VerificationCode(ctx context.Context, issued *auth.IssuedCode)
}

// Deps are the collaborators of Handler. Metrics and Logger may be nil.
type Deps struct {
	Auth     *auth.Service
	Verify   *auth.VerificationService
	Tokens   *auth.TokenService
	Notifier Notifier
	Metrics  *observability.Metrics
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler routes the API.
type Handler struct {
	auth     *auth.Service
	verify   *auth.VerificationService
	tokens   *auth.TokenService
	notifier Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
	mux      *http.ServeMux
	root     http.Handler
}

// NewHandler creates the API handler.
func NewHandler(deps Deps) (*Handler, error) {
	if deps.Auth == nil || deps.Verify == nil || deps.Tokens == nil || deps.Notifier == nil {
		return nil, oops.Code("WEB_INVALID_HANDLER").Errorf("auth, verification, token services and notifier are required")
	}
	h := &Handler{
		auth:     deps.Auth,
		verify:   deps.Verify,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		mux:      http.NewServeMux(),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}

	h.mux.HandleFunc("POST /users", h.createUser)
	h.mux.HandleFunc("POST /auth/token", h.requireBasic(h.issueToken))
	h.mux.HandleFunc("GET /auth/token", h.requireBearer(h.tokenLifetime))
	h.mux.HandleFunc("POST /account/password-reset", h.requestReset)
	h.mux.HandleFunc("POST /account/password-reset/check", h.checkReset)
	h.mux.HandleFunc("PATCH /account/password", h.resetPassword)
	h.mux.HandleFunc("POST /account/password/change", h.requireBasic(h.changePassword))
	h.mux.HandleFunc("POST /account/email", h.requireBearer(h.requestEmailChange))
	h.mux.HandleFunc("POST /account/email/verify", h.verifyEmail)
	h.root = h.instrument(h.mux)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decode(w, r, createUserSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}

	account, err := h.auth.CreateAccount(r.Context(), auth.NewAccountParams{
		Username:   req.Username,
		Password:   req.Password,
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
	})
	if err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}

	issued, err := h.verify.IssueEmailVerificationCode(r.Context(), account.Username, req.Email)
	if err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	h.metrics.RecordCodeIssued(observability.CodeKindEmail)
	h.notifier.VerificationCode(r.Context(), issued)

	writeJSON(w, http.StatusCreated, userResponse{
		ID:           account.ID.String(),
		Username:     account.Username,
		PendingEmail: &issued.Email,
		GivenName:    account.GivenName,
		FamilyName:   account.FamilyName,
	})
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokens.Sign(accountFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	h.metrics.RecordTokenIssued()
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) tokenLifetime(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.tokens.RemainingLifetime(tokenFrom(r.Context()), h.now())
	if err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	writeJSON(w, http.StatusOK, lifetimeResponse{Exp: int64(remaining / time.Second)})
}

// requestReset answers 202 both when the code was issued and when no
// account matched, so the response does not reveal which usernames exist.
func (h *Handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var req requestResetRequest
	if err := decode(w, r, requestResetSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}

	issued, err := h.verify.IssueResetCode(r.Context(), req.Username)
	switch {
	case err == nil:
		h.metrics.RecordCodeIssued(observability.CodeKindReset)
		h.notifier.ResetCode(r.Context(), issued)
	case errors.Is(err, auth.ErrNotFound):
	default:
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) checkReset(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, codeSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	if err := h.verify.CheckResetCode(r.Context(), req.Username, req.Code); err != nil {
		h.writeError(w, r, err, notFoundAsInvalidCode)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, resetPasswordSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	err := h.verify.ResetPassword(r.Context(), req.Username, req.Code, req.Password)
	h.metrics.RecordCodeConsumed(observability.CodeKindReset, consumeResult(err))
	if err != nil {
		h.writeError(w, r, err, notFoundAsInvalidCode)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, changePasswordSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	account := accountFrom(r.Context())
	if err := h.auth.UpdatePassword(r.Context(), account.Username, req.Password, false); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, emailSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	claims := claimsFrom(r.Context())
	issued, err := h.verify.IssueEmailVerificationCode(r.Context(), claims.Username, req.Email)
	if err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	h.metrics.RecordCodeIssued(observability.CodeKindEmail)
	h.notifier.VerificationCode(r.Context(), issued)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, codeSchema, &req); err != nil {
		h.writeError(w, r, err, notFoundAsNotFound)
		return
	}
	err := h.verify.ConsumeEmailVerificationCode(r.Context(), req.Username, req.Code)
	h.metrics.RecordCodeConsumed(observability.CodeKindEmail, consumeResult(err))
	if err != nil {
		h.writeError(w, r, err, notFoundAsInvalidCode)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func consumeResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, auth.ErrInvalidCode), errors.Is(err, auth.ErrNotFound):
		return "invalid"
	default:
		return "error"
	}
}
