// Package auth provides caller identity, roles and bearer token inspection
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// TokenExpiry reads the exp claim without verifying the signature.
// Tokens are verified by the login service; this is only used to bound cache lifetimes.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("invalid token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid token claims: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return exp.Time, nil
}

// CacheTTL returns how long a profile fetched with this token may be cached.
// Opaque or expiry-less tokens get the fallback; expired tokens get zero.
func CacheTTL(tokenString string, fallback time.Duration, now time.Time) time.Duration {
	exp, err := TokenExpiry(tokenString)
	if err != nil {
		return fallback
	}
	remaining := exp.Sub(now)
	if remaining <= 0 {
		return 0
	}
	if remaining < fallback {
		return remaining
	}
	return fallback
}
