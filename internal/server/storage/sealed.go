package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/preshare/internal/cryptox"
)

// Sealed encrypts payloads with AES-GCM before handing them to the wrapped
// store.
type Sealed struct {
	inner Storage
	key   []byte
}

func NewSealed(inner Storage, key []byte) (*Sealed, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("storage key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	return &Sealed{inner: inner, key: append([]byte(nil), key...)}, nil
}

func (s *Sealed) Put(ctx context.Context, key string, data []byte) error {
	sealed, err := cryptox.Seal(s.key, data)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	return s.inner.Put(ctx, key, sealed)
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := cryptox.Open(s.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("open sealed object %s: %w", key, err)
	}
	return data, nil
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}
