package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("token signing secret is not configured")
)

// TokenIssuer mints and verifies HS256 bearer tokens. It keeps no state beyond
// the signing key, so a token stays valid until it expires.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a TokenIssuer.
type Option func(*TokenIssuer)

// WithClock overrides the time source used for issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(t *TokenIssuer) { t.now = now }
}

func NewTokenIssuer(secret string, ttl time.Duration, issuer string, opts ...Option) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	t := &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Issue creates a token for subject valid for the configured ttl. Each token
// carries a random jti, so two tokens minted in the same second still differ.
func (t *TokenIssuer) Issue(subject string) (string, error) {
	now := t.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	})
	s, err := tok.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

// Verify checks signature and expiry and returns the subject.
// It fails with ErrTokenExpired or ErrTokenInvalid.
func (t *TokenIssuer) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return "", fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}
	return claims.Subject, nil
}
