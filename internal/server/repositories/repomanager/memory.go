package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/preshare/internal/server/repositories/dataaccesses"
	"github.com/dmitrijs2005/preshare/internal/server/repositories/users"
)

// MemoryRepositoryManager keeps everything in process memory. Transactions
// are serialized but not rolled back on error.
type MemoryRepositoryManager struct {
	txMu  sync.Mutex
	users *users.MemoryRepository
	data  *dataaccesses.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users: users.NewMemoryRepository(),
		data:  dataaccesses.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) Users() users.Repository { return m.users }

func (m *MemoryRepositoryManager) DataAccesses() dataaccesses.Repository { return m.data }

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}

func (m *MemoryRepositoryManager) Close() error { return nil }
