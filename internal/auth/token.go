// Package auth authenticates wallet sessions and admin callers.
//
// Authentication model:
// - Reads (flags, risk, reputation, labels): no auth required
// - Flag submission: session JWT whose subject is the flagger's wallet
// - Moderation (/v1/admin): X-Admin-Secret header
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoBearerToken = errors.New("authorization header must be: Bearer <token>")
	ErrNoSubject     = errors.New("token has no subject")
	ErrNoSecret      = errors.New("session secret is not configured")
)

// DefaultLeeway tolerates small clock skew between issuer and verifier.
const DefaultLeeway = 30 * time.Second

// Claims are the session claims. Subject is the signed-in wallet address.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier. issuer may be empty to skip the iss check.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// VerifyBearer parses an Authorization header value and returns the claims.
func (v *Verifier) VerifyBearer(header string) (*Claims, error) {
	tokenStr, err := extractBearer(header)
	if err != nil {
		return nil, err
	}
	return v.Verify(tokenStr)
}

// Verify validates a raw token string.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrNoSubject
	}
	return claims, nil
}

// Issue signs a session token for wallet valid for ttl.
func (v *Verifier) Issue(wallet string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strings.ToLower(wallet),
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func extractBearer(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", ErrNoBearerToken
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrNoBearerToken
	}
	return strings.TrimSpace(parts[1]), nil
}
