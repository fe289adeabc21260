// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// tokenAlgorithm is the only accepted signing method.
var tokenAlgorithm = jwt.SigningMethodHS256

// Claims is the payload of a session token.
type Claims struct {
	Username   string  `json:"username"`
	Verified   bool    `json:"verified"`
	GivenName  *string `json:"givenName"`
	FamilyName *string `json:"familyName"`
	jwt.RegisteredClaims
}

// TokenService mints and inspects session tokens.
type TokenService struct {
	secret     []byte
	expiration time.Duration
	now        func() time.Time
}

// NewTokenService creates a new TokenService. Only the clock option is used.
func NewTokenService(cfg Config, opts ...Option) (*TokenService, error) {
	if len(cfg.TokenSecret) < MinTokenSecretLen {
		return nil, oops.Code("TOKEN_INVALID_SERVICE").
			With("min_len", MinTokenSecretLen).
			Errorf("token secret too short")
	}
	if cfg.TokenExpiration <= 0 {
		return nil, oops.Code("TOKEN_INVALID_SERVICE").Errorf("token expiration must be positive")
	}
	o := applyOptions(opts)
	secret := make([]byte, len(cfg.TokenSecret))
	copy(secret, cfg.TokenSecret)
	return &TokenService{
		secret:     secret,
		expiration: cfg.TokenExpiration,
		now:        o.now,
	}, nil
}

// Expiration returns the configured token lifetime.
func (s *TokenService) Expiration() time.Duration {
	return s.expiration
}

// Sign mints a token for account.
func (s *TokenService) Sign(account *Account) (string, error) {
	if account == nil || account.Username == "" {
		return "", oops.Code("TOKEN_SIGN_FAILED").Errorf("account is required")
	}

	givenName, familyName := account.DisplayNames()
	now := s.now()
	claims := Claims{
		Username:   account.Username,
		Verified:   account.IsVerified(),
		GivenName:  givenName,
		FamilyName: familyName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}

	signed, err := jwt.NewWithClaims(tokenAlgorithm, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").
			With("username", account.Username).
			Wrap(err)
	}
	return signed, nil
}

// Decode parses token without checking its signature or expiry. The result
// must not be used to authorize anything.
func (s *TokenService) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, oops.Code("TOKEN_MALFORMED").Wrap(errors.Join(ErrInvalidToken, err))
	}
	return claims, nil
}

// Verify checks the signature, algorithm and expiry of token.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{tokenAlgorithm.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrExpiredToken)
		}
		return nil, oops.Code("TOKEN_INVALID").Wrap(errors.Join(ErrInvalidToken, err))
	}
	if claims.Username == "" {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	return claims, nil
}

// RemainingLifetime returns exp minus now for token. The token is decoded,
// not verified, and is never refreshed. The result is negative once expired.
func (s *TokenService) RemainingLifetime(token string, now time.Time) (time.Duration, error) {
	claims, err := s.Decode(token)
	if err != nil {
		return 0, err
	}
	if claims.ExpiresAt == nil {
		return 0, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	return claims.ExpiresAt.Sub(now), nil
}
