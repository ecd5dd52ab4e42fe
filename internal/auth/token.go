// Package auth verifies bearer tokens issued by the identity provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingHeader    = errors.New("missing or malformed authorization header")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingClaims    = errors.New("token is missing required claims")
	ErrExpired          = errors.New("token is expired")
)

// Subject is the only part of a verified token trusted downstream.
type Subject struct {
	ID string
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

type Option func(*Verifier)

// WithClock overrides the time source used for the expiry check.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(secret []byte, opts ...Option) *Verifier {
	v := &Verifier{
		secret: secret,
		// claims are checked below against our own clock, the parser only verifies the signature
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithoutClaimsValidation(),
		),
		now: time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify checks the signature first and only then looks at sub and exp.
func (v *Verifier) Verify(token string) (Subject, error) {
	var claims jwt.RegisteredClaims

	tok, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Subject{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !tok.Valid {
		return Subject{}, ErrInvalidSignature
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return Subject{}, ErrMissingClaims
	}
	if !claims.ExpiresAt.Time.After(v.now()) {
		return Subject{}, ErrExpired
	}

	return Subject{ID: claims.Subject}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingHeader
	}
	return token, nil
}
