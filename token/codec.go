// Package token decodes bearer credentials on the client side. The backend is
// the signing authority; the client holds no verification key, so only the
// token's structure and its expiry/identity claims are trusted. Nothing here
// grants authorization — an unexpired token merely means the client may keep
// using it until the server says otherwise.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed indicates the raw value is not a structurally valid JWT.
	ErrMalformed = errors.New("token: malformed credential")
	// ErrMissingExpiry indicates the token carries no exp claim.
	ErrMissingExpiry = errors.New("token: missing expiry claim")
	// ErrExpired indicates the token's expiry is in the past.
	ErrExpired = errors.New("token: expired")
)

// Claims is the subset of access-token claims the client relies on.
type Claims struct {
	Subject   string
	SessionID string
	TenantID  string
	Email     string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	SessionID string   `json:"sid,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Codec decodes and validates bearer credentials.
type Codec struct {
	leeway time.Duration
	parser *jwt.Parser

	now func() time.Time
}

// NewCodec creates a [Codec]. leeway absorbs clock skew between client and
// server when judging expiry; it must be non-negative and at most 2 minutes.
func NewCodec(leeway time.Duration) (*Codec, error) {
	if leeway < 0 || leeway > 2*time.Minute {
		return nil, errors.New("token: invalid leeway configuration")
	}
	return &Codec{
		leeway: leeway,
		parser: jwt.NewParser(),
		now:    time.Now,
	}, nil
}

// Decode parses raw without signature verification and returns its claims.
// It fails with [ErrMalformed] for structural problems and [ErrMissingExpiry]
// when no exp claim is present. Expiry itself is judged by [Codec.Expired].
func (c *Codec) Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Count(raw, ".") != 2 {
		return nil, ErrMalformed
	}

	var wc wireClaims
	if _, _, err := c.parser.ParseUnverified(raw, &wc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wc.ExpiresAt == nil {
		return nil, ErrMissingExpiry
	}

	claims := &Claims{
		Subject:   wc.Subject,
		SessionID: wc.SessionID,
		TenantID:  wc.TenantID,
		Email:     wc.Email,
		Roles:     wc.Roles,
		ExpiresAt: wc.ExpiresAt.Time,
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	return claims, nil
}

// Validate decodes raw and additionally rejects already-expired tokens.
func (c *Codec) Validate(raw string) (*Claims, error) {
	claims, err := c.Decode(raw)
	if err != nil {
		return nil, err
	}
	if c.Expired(claims) {
		return nil, ErrExpired
	}
	return claims, nil
}

// Expired reports whether the claims' expiry is in the past, allowing for the
// configured leeway. The check is evaluated at call time, never cached.
func (c *Codec) Expired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt.IsZero() {
		return true
	}
	return c.now().After(claims.ExpiresAt.Add(c.leeway))
}
