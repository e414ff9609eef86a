package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnknownKey is returned when no API key matches the presented hash.
var ErrUnknownKey = errors.New("unknown api key")

// APIKeyInfo holds the identity behind a validated API key. UserID is the
// owner every cart operation is scoped to.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
