package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/preshare/internal/client/models"
)

// View is a displayed list bound to the lifetime of a screen. Refresh
// results that arrive after Close, or after a newer Refresh was started, are
// dropped instead of applied.
type View struct {
	r         *Registry
	partition Partition

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	gen    uint64
	closed bool
	items  []models.DataAccess
}

// NewView binds a view of partition p to ctx.
func (r *Registry) NewView(ctx context.Context, p Partition) *View {
	ctx, cancel := context.WithCancel(ctx)
	return &View{r: r, partition: p, ctx: ctx, cancel: cancel}
}

func (v *View) Partition() Partition { return v.partition }

// Refresh fetches the partition and, unless superseded, installs it both in
// the view and in the registry snapshot.
func (v *View) Refresh() ([]models.DataAccess, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrClosed
	}
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	regGen := v.r.currentGeneration()
	items, err := v.r.fetch(v.ctx, v.partition)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.gen {
		return nil, fmt.Errorf("list %s: %w", v.partition, ErrStale)
	}
	if err != nil {
		return nil, err
	}
	if !v.r.replace(v.partition, items, regGen) {
		return nil, fmt.Errorf("list %s: %w", v.partition, ErrStale)
	}
	v.items = cloneAll(items)
	return cloneAll(items), nil
}

// Items returns what the last applied Refresh installed.
func (v *View) Items() []models.DataAccess {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneAll(v.items)
}

// Close cancels the in-flight request, if any, and stops the view from
// applying further responses. It is safe to call more than once.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.cancel()
}
