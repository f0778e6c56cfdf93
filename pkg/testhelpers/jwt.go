// Package testhelpers provides databases and tokens for ekaya-blueprint tests.
package testhelpers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignTestJWT signs claims with HS256. Tests use it for tokens the service
// would never issue itself: expired, foreign issuer, missing subject.
func SignTestJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

// TestClaims returns claims for sub from issuer that expire after ttl.
// A negative ttl yields an already expired token.
func TestClaims(sub, issuer string, ttl time.Duration) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": sub,
		"iss": issuer,
		"iat": now.Add(-time.Minute).Unix(),
		"exp": now.Add(ttl).Unix(),
	}
}
