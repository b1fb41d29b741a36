// Package metadata is the local key/value store of the CLI. It keeps the
// session credential between runs.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyToken    = "session.token"
	KeyUsername = "session.username"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
