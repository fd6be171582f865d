// Package authsvc issues and validates the bearer tokens that gate every
// session endpoint. Tokens are HMAC-SHA256 JWTs carrying only a subject
// (the anonymous user id), issued-at, expiry, and a fixed token type; there
// are no roles or scopes in v1.
//
// Grounded on the teacher's auth.jwtSecret config field and its
// generate-if-missing behavior at startup, but replacing the teacher's
// timestamp-derived dev placeholder with a real CSPRNG secret persisted to
// disk, since a predictable secret is a genuine authentication bypass.
package authsvc

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/extractumio/agentum/internal/apperr"
)

const tokenType = "access"

// Service issues and validates bearer tokens for a single signing secret.
type Service struct {
	secret        []byte
	tokenDuration time.Duration
}

// New constructs a Service, loading (or generating and persisting) the
// signing secret at secretFilePath.
func New(secretFilePath string, tokenDuration time.Duration) (*Service, error) {
	secret, err := loadOrGenerateSecret(secretFilePath)
	if err != nil {
		return nil, err
	}
	return &Service{secret: secret, tokenDuration: tokenDuration}, nil
}

// claims is the JWT payload: {sub, iat, exp, typ: "access"}.
type claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// IssueToken mints a bearer token for userID, valid for the configured
// token duration from now.
func (s *Service) IssueToken(userID string) (string, error) {
	now := time.Now().UTC()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
		},
		Type: tokenType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.Internal("sign bearer token", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies raw, returning the subject (user id)
// it was issued for. Any signature mismatch, expiry, or wrong token type
// is reported as an UnauthorizedError.
func (s *Service) ValidateToken(raw string) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthorized("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Unauthorized("invalid or expired bearer token")
	}
	if c.Type != tokenType {
		return "", apperr.Unauthorized("unexpected token type")
	}
	if c.Subject == "" {
		return "", apperr.Unauthorized("token missing subject")
	}
	return c.Subject, nil
}
