package metadata

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/preshare/internal/dbx"
)

// SessionStore persists the credential and username atomically on top of the
// metadata table.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save stores token and username in one transaction.
func (s *SessionStore) Save(ctx context.Context, token, username string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx)
		if err := repo.Set(ctx, KeyToken, []byte(token)); err != nil {
			return err
		}
		return repo.Set(ctx, KeyUsername, []byte(username))
	})
}

// Load returns the stored credential; ok is false when nothing was saved.
func (s *SessionStore) Load(ctx context.Context) (token, username string, ok bool, err error) {
	repo := NewSQLiteRepository(s.db)
	t, err := repo.Get(ctx, KeyToken)
	if err != nil || len(t) == 0 {
		return "", "", false, err
	}
	u, err := repo.Get(ctx, KeyUsername)
	if err != nil {
		return "", "", false, err
	}
	return string(t), string(u), true, nil
}

// Clear removes the stored credential.
func (s *SessionStore) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx)
		if err := repo.Delete(ctx, KeyToken); err != nil {
			return err
		}
		return repo.Delete(ctx, KeyUsername)
	})
}
