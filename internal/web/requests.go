// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"

	"github.com/ideaboard/ideaboard/internal/schema"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

type createUserRequest struct {
	Username   string  `json:"username" jsonschema:"required,minLength=2,maxLength=32"`
	Password   string  `json:"password" jsonschema:"required,minLength=1"`
	Email      string  `json:"email" jsonschema:"required,minLength=3,maxLength=254"`
	GivenName  *string `json:"givenName,omitempty" jsonschema:"maxLength=100"`
	FamilyName *string `json:"familyName,omitempty" jsonschema:"maxLength=100"`
}

// requestResetRequest accepts a username or a verified email.
type requestResetRequest struct {
	Username string `json:"username" jsonschema:"required,minLength=1,maxLength=254"`
}

type codeRequest struct {
	Username string `json:"username" jsonschema:"required,minLength=1,maxLength=32"`
	Code     string `json:"code" jsonschema:"required,minLength=1,maxLength=128"`
}

type resetPasswordRequest struct {
	Username string `json:"username" jsonschema:"required,minLength=1,maxLength=32"`
	Code     string `json:"code" jsonschema:"required,minLength=1,maxLength=128"`
	Password string `json:"password" jsonschema:"required,minLength=1"`
}

type changePasswordRequest struct {
	Password string `json:"password" jsonschema:"required,minLength=1"`
}

type emailRequest struct {
	Email string `json:"email" jsonschema:"required,minLength=3,maxLength=254"`
}

var (
	createUserSchema     = schema.MustReflect(&createUserRequest{})
	requestResetSchema   = schema.MustReflect(&requestResetRequest{})
	codeSchema           = schema.MustReflect(&codeRequest{})
	resetPasswordSchema  = schema.MustReflect(&resetPasswordRequest{})
	changePasswordSchema = schema.MustReflect(&changePasswordRequest{})
	emailSchema          = schema.MustReflect(&emailRequest{})
)

type tokenResponse struct {
	Token string `json:"token"`
}

type lifetimeResponse struct {
	Exp int64 `json:"exp"`
}

type userResponse struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	PendingEmail *string `json:"pendingEmail,omitempty"`
	GivenName    *string `json:"givenName,omitempty"`
	FamilyName   *string `json:"familyName,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errBadRequest = errors.New("bad request")

// decode reads the body, validates it against s and unmarshals it into dst.
func decode(w http.ResponseWriter, r *http.Request, s *schema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return oops.Code("REQUEST_TOO_LARGE").Wrap(errors.Join(errBadRequest, err))
	}
	if err := s.ValidateJSON(body); err != nil {
		return oops.Code("REQUEST_INVALID").
			With("reason", schema.FormatError(err)).
			Wrap(errors.Join(errBadRequest, err))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code("REQUEST_INVALID").Wrap(errors.Join(errBadRequest, err))
	}
	return nil
}
