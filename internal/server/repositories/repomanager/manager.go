package repomanager

import (
	"context"

	"github.com/dmitrijs2005/preshare/internal/server/repositories/dataaccesses"
	"github.com/dmitrijs2005/preshare/internal/server/repositories/users"
)

// Repositories is the set of repositories bound to one connection or
// transaction.
type Repositories interface {
	Users() users.Repository
	DataAccesses() dataaccesses.Repository
}

type RepositoryManager interface {
	Repositories
	RunMigrations(ctx context.Context) error
	// WithTx runs fn with repositories bound to a single transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Close() error
}
