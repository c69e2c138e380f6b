package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 60 * time.Minute

// TokenCodec signs and verifies HS256 bearer tokens. It is pure
// cryptography: revocation is the caller's concern.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec expects a secret of at least 32 bytes; configuration loading
// enforces that.
func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &TokenCodec{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for subject. An empty jti is replaced with a fresh
// random identifier and a non-positive ttl falls back to the codec default.
func (c *TokenCodec) Issue(subject, jti string, ttl time.Duration) (string, TokenClaims, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if jti == "" {
		id := uuid.New()
		jti = hex.EncodeToString(id[:])
	}

	now := c.now().UTC()
	registered := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString(c.secret)
	if err != nil {
		return "", TokenClaims{}, fmt.Errorf("sign jwt: %w", err)
	}

	return signed, TokenClaims{
		Subject:   subject,
		JTI:       jti,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}

// Decode verifies signature and expiry. It returns ErrTokenExpired for a
// stale token and ErrInvalidToken for everything else, including a missing
// subject.
func (c *TokenCodec) Decode(tokenStr string) (TokenClaims, error) {
	registered := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, registered, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	if registered.Subject == "" {
		return TokenClaims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := TokenClaims{
		Subject: registered.Subject,
		JTI:     registered.ID,
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time.UTC()
	}

	return claims, nil
}
