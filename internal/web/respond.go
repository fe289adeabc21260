// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/auth"
	"github.com/ideaboard/ideaboard/pkg/errutil"
)

// Error codes in response bodies.
const (
	codeInvalidRequest  = "invalid_request"
	codeUnauthorized    = "unauthorized"
	codeInvalidToken    = "invalid_token"
	codeExpiredToken    = "expired_token"
	codeInvalidCode     = "invalid_code"
	codeUserNotVerified = "user_not_verified"
	codeNoPendingEmail  = "no_pending_email"
	codeConflict        = "conflict"
	codeNotFound        = "not_found"
	codeInternal        = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeUnauthorized sends the challenge for Basic-Auth routes. The body
// never says why the credentials were rejected.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="ideaboard", charset="UTF-8"`)
	writeErrorBody(w, http.StatusUnauthorized, codeUnauthorized, "")
}

// errorMapping controls how writeError treats auth.ErrNotFound.
type errorMapping int

const (
	notFoundAsNotFound errorMapping = iota
	// notFoundAsInvalidCode hides whether the user exists on code routes.
	notFoundAsInvalidCode
)

// writeError maps err to a status and body. Anything unrecognized is a
// server failure: it is logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, mapping errorMapping) {
	switch {
	case errors.Is(err, errBadRequest):
		reason, _ := contextString(err, "reason")
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, reason)
	case errors.Is(err, auth.ErrEmptyPassword):
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, "password cannot be empty")
	case isValidationCode(errutil.Code(err)):
		writeErrorBody(w, http.StatusBadRequest, codeInvalidRequest, publicMessage(err))
	case errors.Is(err, auth.ErrNotFound) && mapping == notFoundAsInvalidCode:
		writeErrorBody(w, http.StatusBadRequest, codeInvalidCode, "")
	case errors.Is(err, auth.ErrInvalidCode):
		writeErrorBody(w, http.StatusBadRequest, codeInvalidCode, "")
	case errors.Is(err, auth.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, codeNotFound, "")
	case errors.Is(err, auth.ErrUserNotVerified):
		writeErrorBody(w, http.StatusBadRequest, codeUserNotVerified, "a verified email is required to reset the password")
	case errors.Is(err, auth.ErrNoPendingEmail):
		writeErrorBody(w, http.StatusConflict, codeNoPendingEmail, "")
	case errors.Is(err, auth.ErrConflict):
		writeErrorBody(w, http.StatusConflict, codeConflict, "")
	case errors.Is(err, auth.ErrExpiredToken):
		writeErrorBody(w, http.StatusUnauthorized, codeExpiredToken, "")
	case errors.Is(err, auth.ErrInvalidToken):
		writeErrorBody(w, http.StatusUnauthorized, codeInvalidToken, "")
	default:
		errutil.LogErrorContext(r.Context(), h.logger, "request failed", err)
		writeErrorBody(w, http.StatusInternalServerError, codeInternal, "")
	}
}

// isValidationCode reports codes raised for input the client can fix.
func isValidationCode(code string) bool {
	switch code {
	case "AUTH_INVALID_USERNAME", "EMAIL_INVALID":
		return true
	}
	return false
}

// publicMessage returns the innermost message, which for validation errors
// is the user-facing explanation.
func publicMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return err.Error()
}

func contextString(err error, key string) (string, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "", false
	}
	v, ok := oopsErr.Context()[key].(string)
	return v, ok
}
