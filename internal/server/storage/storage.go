// Package storage keeps uploaded payloads in an object store.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Storage is a flat key/value blob store. Get and Delete of an unknown key
// return common.ErrNotFound.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh object key partitioned by upload date.
func NewKey(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("payloads/%04d/%02d/%02d/%s", now.Year(), now.Month(), now.Day(), uuid.NewString())
}
