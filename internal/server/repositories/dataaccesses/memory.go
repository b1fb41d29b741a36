package dataaccesses

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/server/models"
)

type MemoryRepository struct {
	mu         sync.RWMutex
	nextID     int64
	nextDataID int64
	items      map[int64]models.DataAccess
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[int64]models.DataAccess)}
}

func clone(d models.DataAccess) models.DataAccess {
	d.Readers = append([]string{}, d.Readers...)
	return d
}

func (r *MemoryRepository) Create(ctx context.Context, d *models.DataAccess) (*models.DataAccess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.nextDataID++
	d.ID = r.nextID
	d.DataID = r.nextDataID
	d.CreatedAt = time.Now().UTC()
	d.Readers = []string{}
	r.items[d.ID] = clone(*d)
	return d, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id int64) (*models.DataAccess, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.items[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	d = clone(d)
	return &d, nil
}

// GetForUpdate is Get; the memory manager serializes transactions as a whole.
func (r *MemoryRepository) GetForUpdate(ctx context.Context, id int64) (*models.DataAccess, error) {
	return r.Get(ctx, id)
}

func (r *MemoryRepository) ListOwned(ctx context.Context, owner string) ([]models.DataAccess, error) {
	return r.filter(func(d models.DataAccess) bool { return d.Owner == owner }), nil
}

func (r *MemoryRepository) ListGranted(ctx context.Context, reader string) ([]models.DataAccess, error) {
	return r.filter(func(d models.DataAccess) bool { return slices.Contains(d.Readers, reader) }), nil
}

func (r *MemoryRepository) filter(keep func(models.DataAccess) bool) []models.DataAccess {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.DataAccess{}
	for _, d := range r.items {
		if keep(d) {
			out = append(out, clone(d))
		}
	}
	slices.SortFunc(out, func(a, b models.DataAccess) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (r *MemoryRepository) SetReaders(ctx context.Context, id int64, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	d.Readers = append([]string{}, names...)
	slices.Sort(d.Readers)
	r.items[id] = d
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.items, id)
	return nil
}
