package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultJWTIssuer   = "campusai-auth"
	defaultJWTAudience = "campusai-api"
)

// JWTSessionStore issues and validates stateless HS256 session tokens.
// Logout is a no-op: tokens stay valid until expiry, which is acceptable
// for the short TTLs this store is configured with.
type JWTSessionStore struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
}

// NewJWTSessionStore builds an HS256 JWT session store.
func NewJWTSessionStore(secret string, ttl time.Duration) (*JWTSessionStore, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTSessionStore{
		secret:   []byte(secret),
		ttl:      ttl,
		issuer:   defaultJWTIssuer,
		audience: defaultJWTAudience,
	}, nil
}

// NewSession issues a signed token for the user.
func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// GetUserIDByToken validates the token and returns its subject.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", false, nil
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", false, nil
	}
	return claims.Subject, true, nil
}

// DeleteSession is a no-op for stateless tokens.
func (s *JWTSessionStore) DeleteSession(string) error {
	return nil
}
