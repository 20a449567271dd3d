package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClass distinguishes short-lived access tokens from long-lived refresh
// tokens. A refresh token only mints new access tokens; it never authorizes
// resource access directly.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// issuedAtLeeway tolerates small clock skew between issuer and verifier on
// the issued-at claim. Expiry is checked exactly, with no grace window.
const issuedAtLeeway = 5 * time.Second

// TokenClaims are the claims carried by every signed token.
type TokenClaims struct {
	Class TokenClass `json:"cls"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access/refresh tokens (HS256).
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenCodec creates a codec from a shared secret and per-class lifetimes.
func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// TTL returns the configured lifetime for a token class.
func (c *TokenCodec) TTL(class TokenClass) time.Duration {
	if class == ClassRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a token for subject with expiry now + TTL(class).
// Returns the compact token string and its expiry.
func (c *TokenCodec) Issue(subject uuid.UUID, class TokenClass, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(c.TTL(class))
	claims := &TokenClaims{
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a token string against the expected class at
// the given instant. Expiry is exact: now >= exp fails with ErrTokenExpired.
func (c *TokenCodec) Verify(tokenString string, expected TokenClass, now time.Time) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrTokenSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrTokenInvalid)
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt.Time.After(now.Add(issuedAtLeeway)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrTokenInvalid)
	}
	if claims.Class != expected {
		return nil, ErrTokenClass
	}
	return claims, nil
}

// Fingerprint returns the SHA-256 hex digest of a token string. Only
// fingerprints are persisted, so a database read never discloses a usable
// credential.
func Fingerprint(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}
