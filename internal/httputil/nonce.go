package httputil

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

type nonceKey struct{}

// NewNonce returns a random CSP nonce of 16 bytes, base64url encoded.
func NewNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func WithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceKey{}, nonce)
}

// Nonce returns the CSP nonce of the current request, or "".
func Nonce(ctx context.Context) string {
	v, _ := ctx.Value(nonceKey{}).(string)
	return v
}
