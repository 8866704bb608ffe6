// Package identity verifies the bearer credential a caller presents and
// resolves it to a user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type Caller struct {
	UserID string
	Email  string
}

type Options struct {
	Secret   string
	Audience string
	Issuer   string
}

// Verifier checks HS256 access tokens signed with the auth service secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewVerifier(opts Options) *Verifier {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	return &Verifier{
		secret: []byte(opts.Secret),
		parser: jwt.NewParser(parserOpts...),
	}
}

// Authenticate resolves an Authorization header value ("Bearer <token>").
func (v *Verifier) Authenticate(_ context.Context, authorization string) (Caller, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return Caller{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if len(v.secret) == 0 {
		return Caller{}, fmt.Errorf("%w: verifier has no secret", ErrUnauthorized)
	}

	var c claims
	_, err := v.parser.ParseWithClaims(strings.TrimSpace(token), &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if c.Subject == "" {
		return Caller{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	return Caller{UserID: c.Subject, Email: c.Email}, nil
}
