// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

// Package session issues and validates the scoped bearer tokens that gate the
// signing endpoint. Tokens are self-contained HMAC-SHA256 JWTs carrying
// {sub, scope, iat, exp, iss}; no server-side session record exists.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeSign is the capability required to invoke message signing.
	ScopeSign = "keyring:sign"

	// DefaultIssuer is the iss claim stamped on every token.
	DefaultIssuer = "keypo-wallet"

	// DefaultTTL is the absolute token lifetime.
	DefaultTTL = 30 * time.Minute
)

var (
	// ErrSecretRequired is returned when the issuer is constructed without a
	// signing secret. This is a deployment error and must stop the process
	// from serving, not fail per-request.
	ErrSecretRequired = errors.New("session signing secret is not configured")

	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("no authorization token provided")

	// ErrTokenExpired is returned when the token's exp claim has passed.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenMalformed is returned when the token structure or signature is
	// invalid.
	ErrTokenMalformed = errors.New("invalid token")

	// ErrInsufficientScope is returned when a valid token lacks the signing
	// scope.
	ErrInsufficientScope = errors.New("insufficient permissions")
)

// Claims is the token payload.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Issuer mints and validates session tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithIssuer overrides the iss claim.
func WithIssuer(iss string) Option {
	return func(i *Issuer) { i.issuer = iss }
}

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithClock overrides the time source. Used by tests to exercise expiry.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates a token issuer. Returns ErrSecretRequired if secret is
// empty.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	i := &Issuer{
		secret: secret,
		issuer: DefaultIssuer,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints a signing-scoped token for userID.
func (i *Issuer) Issue(userID string) (string, error) {
	now := i.now()
	claims := Claims{
		Scope: ScopeSign,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, expiry, issuer, and scope, in that order of
// severity, and returns the subject user ID. Each failure mode maps to a
// distinct sentinel so callers can report it without leaking anything else.
func (i *Issuer) Validate(tokenString string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenMalformed
	}

	if !strings.Contains(claims.Scope, ScopeSign) {
		return "", ErrInsufficientScope
	}
	if claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

// ValidateRequest extracts the bearer token from r and validates it.
func (i *Issuer) ValidateRequest(r *http.Request) (string, error) {
	token, err := ExtractBearer(r)
	if err != nil {
		return "", err
	}
	return i.Validate(token)
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header. The header must have exactly two space-separated parts and a
// case-insensitive "bearer" scheme; anything else counts as no token.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return parts[1], nil
}
