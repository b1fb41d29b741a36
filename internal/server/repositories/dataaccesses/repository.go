// Package dataaccesses persists data-access records and their reader lists.
package dataaccesses

import (
	"context"

	"github.com/dmitrijs2005/preshare/internal/server/models"
)

type Repository interface {
	// Create inserts d without readers and fills ID, DataID and CreatedAt.
	Create(ctx context.Context, d *models.DataAccess) (*models.DataAccess, error)
	Get(ctx context.Context, id int64) (*models.DataAccess, error)
	// GetForUpdate is Get that also locks the row until the surrounding
	// transaction ends. Outside a transaction it behaves like Get.
	GetForUpdate(ctx context.Context, id int64) (*models.DataAccess, error)
	ListOwned(ctx context.Context, owner string) ([]models.DataAccess, error)
	ListGranted(ctx context.Context, reader string) ([]models.DataAccess, error)
	// SetReaders replaces the reader list of id.
	SetReaders(ctx context.Context, id int64, readers []string) error
	Delete(ctx context.Context, id int64) error
}
