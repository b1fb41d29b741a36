// Package workflow implements the user-facing operations on records:
// granting and revoking readers, uploading and deleting.
//
// Reader changes are server-authoritative. Grant and Revoke read the fresh
// record, compute the full target reader set, send it, and take whatever the
// server answers as the new state. A target equal to the current set sends
// nothing. Operations on the same record id never overlap.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/filex"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

// Registry is the part of registry.Registry the workflows drive.
type Registry interface {
	Get(ctx context.Context, id int64) (models.DataAccess, error)
	Lookup(id int64) (models.DataAccess, bool)
	Create(ctx context.Context, payload models.Blob) (models.DataAccess, error)
	UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error)
	Delete(ctx context.Context, id int64) error
	Download(ctx context.Context, id int64) (models.Blob, error)
}

// Principal names the signed-in user; "" when anonymous.
type Principal interface {
	Username() string
}

// Selection is anything holding a pointer at a record.
type Selection interface {
	ClearIf(id int64) bool
}

type Workflow struct {
	reg       Registry
	who       Principal
	gw        gateway.Gateway
	threshold int
	log       logging.Logger

	locks keyedMutex

	mu         sync.Mutex
	selections []Selection
}

type Option func(*Workflow)

// WithGateway makes Grant and Revoke re-key the affected readers.
func WithGateway(gw gateway.Gateway, threshold int) Option {
	return func(w *Workflow) {
		w.gw = gw
		w.threshold = threshold
	}
}

func WithLogger(l logging.Logger) Option {
	return func(w *Workflow) { w.log = l }
}

func New(reg Registry, who Principal, opts ...Option) *Workflow {
	w := &Workflow{reg: reg, who: who, threshold: 1, log: logging.Discard()}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Track registers a selection that Delete must clear.
func (w *Workflow) Track(s Selection) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selections = append(w.selections, s)
}

// Grant adds readers to the record.
func (w *Workflow) Grant(ctx context.Context, id int64, readers []string) (models.DataAccess, error) {
	return w.changeReaders(ctx, "grant", id, readers, models.WithReaders)
}

// Revoke removes readers from the record. Revoking an identity that is not a
// reader is a no-op.
func (w *Workflow) Revoke(ctx context.Context, id int64, readers []string) (models.DataAccess, error) {
	return w.changeReaders(ctx, "revoke", id, readers, models.WithoutReaders)
}

func (w *Workflow) changeReaders(
	ctx context.Context,
	op string,
	id int64,
	readers []string,
	target func(current, change []string) []string,
) (models.DataAccess, error) {
	if err := w.checkOwner(id); err != nil {
		return models.DataAccess{}, fmt.Errorf("%s: %w", op, err)
	}

	unlock := w.locks.Lock(id)
	defer unlock()

	fresh, err := w.reg.Get(ctx, id)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("%s: %w", op, err)
	}
	if user := w.username(); user != "" && !fresh.IsOwnedBy(user) {
		return models.DataAccess{}, fmt.Errorf("%s: %w", op, client.ErrNotOwner)
	}
	if op == "grant" && slices.Contains(readers, fresh.Owner) {
		return models.DataAccess{}, fmt.Errorf("%s: %w: the owner cannot be a reader", op, client.ErrValidation)
	}

	want := target(fresh.Readers, readers)
	if models.SameReaders(want, fresh.Readers) {
		w.log.Debug(ctx, "readers unchanged", "op", op, "id", id)
		return fresh, nil
	}

	updated, err := w.reg.UpdateReaders(ctx, id, want)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("%s: %w", op, err)
	}
	w.log.Info(ctx, "readers updated", "op", op, "id", id, "readers", updated.Readers)

	if err := w.rekey(ctx, fresh, updated); err != nil {
		return updated, fmt.Errorf("%s: %w: %w", op, client.ErrPartialFailure, err)
	}
	return updated, nil
}

// rekey tells the gateway about the readers that actually changed,
// according to the server response.
func (w *Workflow) rekey(ctx context.Context, before, after models.DataAccess) error {
	granted := models.WithoutReaders(after.Readers, before.Readers)
	revoked := models.WithoutReaders(before.Readers, after.Readers)
	if len(granted) == 0 && len(revoked) == 0 {
		return nil
	}
	if w.gw == nil {
		w.log.Warn(ctx, "readers changed but no gateway is configured, keys not updated",
			"id", after.ID, "data_id", after.DataID, "granted", granted, "revoked", revoked)
		return nil
	}

	err := w.gw.Rekey(ctx, gateway.RekeyRequest{
		DataID:    after.DataID,
		Granted:   granted,
		Revoked:   revoked,
		Threshold: w.threshold,
	})
	if err != nil {
		w.log.Error(ctx, "rekey failed", "id", after.ID, "data_id", after.DataID, "error", err)
		return fmt.Errorf("rekey data %d: %w", after.DataID, err)
	}
	return nil
}

// Upload creates a record for payload.
func (w *Workflow) Upload(ctx context.Context, payload models.Blob) (models.DataAccess, error) {
	if len(payload.Data) == 0 {
		return models.DataAccess{}, fmt.Errorf("upload: %w: empty payload", client.ErrValidation)
	}
	d, err := w.reg.Create(ctx, payload)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("upload: %w", err)
	}
	w.log.Info(ctx, "uploaded", "id", d.ID, "data_id", d.DataID)
	return d, nil
}

// UploadFile reads path and uploads its contents under the file's name.
func (w *Workflow) UploadFile(ctx context.Context, path string) (models.DataAccess, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.DataAccess{}, fmt.Errorf("upload: read %s: %w", path, err)
	}
	return w.Upload(ctx, models.Blob{Name: filepath.Base(path), Data: data})
}

// Delete destroys the record and clears every selection pointing at it.
func (w *Workflow) Delete(ctx context.Context, id int64) error {
	if err := w.checkOwner(id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	unlock := w.locks.Lock(id)
	defer unlock()

	err := w.reg.Delete(ctx, id)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("delete: %w", err)
	}

	w.mu.Lock()
	for _, s := range w.selections {
		s.ClearIf(id)
	}
	w.mu.Unlock()

	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	w.log.Info(ctx, "deleted", "id", id)
	return nil
}

// Download fetches the payload of id and stores it in dir without
// overwriting existing files. It returns the written path.
func (w *Workflow) Download(ctx context.Context, id int64, dir string) (string, error) {
	b, err := w.reg.Download(ctx, id)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	path, err := filex.WriteFile(dir, b.Name, b.Data)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	w.log.Info(ctx, "downloaded", "id", id, "path", path, "bytes", len(b.Data))
	return path, nil
}

// checkOwner fails fast for records known locally to belong to someone else.
func (w *Workflow) checkOwner(id int64) error {
	user := w.username()
	if user == "" {
		return nil
	}
	if d, ok := w.reg.Lookup(id); ok && !d.IsOwnedBy(user) {
		return client.ErrNotOwner
	}
	return nil
}

func (w *Workflow) username() string {
	if w.who == nil {
		return ""
	}
	return w.who.Username()
}
