package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The backend signs its tokens; the web tier never holds the key. It only
// reads the expiry to size cookies and drive the session-expiry monitor.

var ErrNoExpiry = errors.New("token has no expiry")

// TokenExpiry returns the exp claim of a backend token without verifying its
// signature.
func TokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether token is past its expiry at now. Tokens that cannot
// be parsed count as expired; tokens without exp never expire here.
func Expired(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if errors.Is(err, ErrNoExpiry) {
		return false
	}
	if err != nil {
		return true
	}
	return !now.Before(exp)
}
