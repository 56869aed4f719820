package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenInvalid is returned for tokens that fail signature, expiry,
// or claim validation.
var ErrTokenInvalid = errors.New("invalid token")

// TenantClaims are the JWT claims carried by tenant access tokens.
// The subject is the tenant id.
type TenantClaims struct {
	jwt.RegisteredClaims
}

// GenerateTenantToken creates a signed HS256 access token for a tenant.
// Used by provisioning tooling and tests.
func GenerateTenantToken(tenantID, secret string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := TenantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing tenant token: %w", err)
	}
	return signed, nil
}

// ParseTenantToken validates a tenant access token and returns the
// tenant id. It checks the signature, expiry, and subject.
func ParseTenantToken(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TenantClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*TenantClaims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims.Subject, nil
}
