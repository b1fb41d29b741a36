// Package registry keeps the client's view of data-access records.
//
// The server is the source of truth. Every list call goes to the server and
// its answer replaces the local snapshot of that partition; every mutation
// response replaces the local copy of the record it touched. Snapshots are
// only read through Lookup and Snapshot and are never merged locally.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

// Partition selects which list of records a call works on.
type Partition int

const (
	Owned Partition = iota
	Granted
)

func (p Partition) String() string {
	if p == Granted {
		return "granted"
	}
	return "owned"
}

var (
	// ErrStale is returned when a response arrived after the registry or a
	// view moved on and was discarded.
	ErrStale  = errors.New("stale response discarded")
	ErrClosed = errors.New("view closed")
)

// API is the part of client.Client the registry needs.
type API interface {
	ListOwned(ctx context.Context) ([]models.DataAccess, error)
	ListGranted(ctx context.Context) ([]models.DataAccess, error)
	Get(ctx context.Context, id int64) (models.DataAccess, error)
	Create(ctx context.Context, payload models.Blob) (models.DataAccess, error)
	UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error)
	Delete(ctx context.Context, id int64) error
	Download(ctx context.Context, id int64) (models.Blob, error)
}

type Registry struct {
	api API
	log logging.Logger

	mu         sync.RWMutex
	generation uint64
	snapshots  [2][]models.DataAccess
}

func New(api API, log logging.Logger) *Registry {
	if log == nil {
		log = logging.Discard()
	}
	return &Registry{api: api, log: log}
}

// ListOwned yields the records the caller owns, fetched fresh from the
// server each time the sequence is iterated. A fetch error is yielded once
// as the only element.
func (r *Registry) ListOwned(ctx context.Context) iter.Seq2[models.DataAccess, error] {
	return r.list(ctx, Owned)
}

// ListGranted yields the records shared with the caller.
func (r *Registry) ListGranted(ctx context.Context) iter.Seq2[models.DataAccess, error] {
	return r.list(ctx, Granted)
}

func (r *Registry) list(ctx context.Context, p Partition) iter.Seq2[models.DataAccess, error] {
	return func(yield func(models.DataAccess, error) bool) {
		items, err := r.Fetch(ctx, p)
		if err != nil {
			yield(models.DataAccess{}, err)
			return
		}
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// Fetch loads partition p from the server and replaces its snapshot.
func (r *Registry) Fetch(ctx context.Context, p Partition) ([]models.DataAccess, error) {
	gen := r.currentGeneration()
	items, err := r.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	if !r.replace(p, items, gen) {
		return nil, fmt.Errorf("list %s: %w", p, ErrStale)
	}
	return cloneAll(items), nil
}

func (r *Registry) fetch(ctx context.Context, p Partition) ([]models.DataAccess, error) {
	var (
		items []models.DataAccess
		err   error
	)
	if p == Granted {
		items, err = r.api.ListGranted(ctx)
	} else {
		items, err = r.api.ListOwned(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	return items, nil
}

func (r *Registry) currentGeneration() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// replace installs items unless Reset ran since gen was read.
func (r *Registry) replace(p Partition, items []models.DataAccess, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return false
	}
	r.snapshots[p] = cloneAll(items)
	return true
}

// Get fetches one record and refreshes its local copy.
func (r *Registry) Get(ctx context.Context, id int64) (models.DataAccess, error) {
	gen := r.currentGeneration()
	d, err := r.api.Get(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			r.forget(id, gen)
		}
		return models.DataAccess{}, fmt.Errorf("get %d: %w", id, err)
	}
	r.apply(d, gen)
	return d.Clone(), nil
}

// Create uploads payload as a new record owned by the caller.
func (r *Registry) Create(ctx context.Context, payload models.Blob) (models.DataAccess, error) {
	if len(payload.Data) == 0 {
		return models.DataAccess{}, fmt.Errorf("create: %w: empty payload", client.ErrValidation)
	}
	gen := r.currentGeneration()
	d, err := r.api.Create(ctx, payload)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("create: %w", err)
	}

	r.mu.Lock()
	if r.generation == gen {
		r.snapshots[Owned] = append(r.snapshots[Owned], d.Clone())
	}
	r.mu.Unlock()

	r.log.Debug(ctx, "record created", "id", d.ID, "data_id", d.DataID)
	return d.Clone(), nil
}

// Delete destroys the record. Only the owner may do so; the server rejects
// everyone else with ErrNotOwner.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	gen := r.currentGeneration()
	err := r.api.Delete(ctx, id)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	r.forget(id, gen)
	if err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	r.log.Debug(ctx, "record deleted", "id", id)
	return nil
}

// Download returns the payload, re-encrypted by the server for the caller.
func (r *Registry) Download(ctx context.Context, id int64) (models.Blob, error) {
	b, err := r.api.Download(ctx, id)
	if err != nil {
		return models.Blob{}, fmt.Errorf("download %d: %w", id, err)
	}
	return b, nil
}

// UpdateReaders replaces the reader set of id with readers. The server
// response replaces the local copy as is.
func (r *Registry) UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error) {
	gen := r.currentGeneration()
	d, err := r.api.UpdateReaders(ctx, id, readers)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("update readers of %d: %w", id, err)
	}
	r.apply(d, gen)
	return d.Clone(), nil
}

// Lookup reads the local snapshots. It never does I/O.
func (r *Registry) Lookup(id int64) (models.DataAccess, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, snap := range r.snapshots {
		if i := indexOf(snap, id); i >= 0 {
			return snap[i].Clone(), true
		}
	}
	return models.DataAccess{}, false
}

// Snapshot returns the last fetched contents of partition p.
func (r *Registry) Snapshot(p Partition) []models.DataAccess {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.snapshots[p])
}

// Reset drops all snapshots; responses to requests issued before the reset
// are not applied.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.snapshots = [2][]models.DataAccess{}
}

func (r *Registry) apply(d models.DataAccess, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return
	}
	for p := range r.snapshots {
		if i := indexOf(r.snapshots[p], d.ID); i >= 0 {
			r.snapshots[p][i] = d.Clone()
		}
	}
}

func (r *Registry) forget(id int64, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return
	}
	for p := range r.snapshots {
		r.snapshots[p] = slices.DeleteFunc(r.snapshots[p], func(d models.DataAccess) bool { return d.ID == id })
	}
}

func indexOf(items []models.DataAccess, id int64) int {
	return slices.IndexFunc(items, func(d models.DataAccess) bool { return d.ID == id })
}

func cloneAll(items []models.DataAccess) []models.DataAccess {
	out := make([]models.DataAccess, len(items))
	for i, d := range items {
		out[i] = d.Clone()
	}
	return out
}
