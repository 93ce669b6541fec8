package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKey identifies a client allowed to mutate the catalog. Only the
// HMAC-SHA256 hash of the key material is ever stored.
type APIKey struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides API key persistence and lookup by hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
	Upsert(ctx context.Context, key *APIKey) error
}
