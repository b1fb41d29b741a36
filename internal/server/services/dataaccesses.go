package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/logging"
	"github.com/dmitrijs2005/preshare/internal/server/models"
	"github.com/dmitrijs2005/preshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/preshare/internal/server/storage"
)

const (
	msgEmptyFile   = "The submitted file is empty."
	msgBlankReader = "This field may not be blank."
	msgOwnerReader = "The owner cannot be a reader."
)

// Upload is a file received for a new record.
type Upload struct {
	FileName string
	Data     []byte
}

// Payload is what a reader downloads.
type Payload struct {
	FileName string
	Data     []byte
}

type DataAccessService struct {
	repos   repomanager.RepositoryManager
	store   storage.Storage
	gateway gateway.Gateway
	log     logging.Logger
	now     func() time.Time
}

// NewDataAccessService wires the service. gw may be nil, in which case
// payloads are served to readers as stored.
func NewDataAccessService(repos repomanager.RepositoryManager, store storage.Storage, gw gateway.Gateway, log logging.Logger) *DataAccessService {
	if log == nil {
		log = logging.Discard()
	}
	return &DataAccessService{
		repos:   repos,
		store:   store,
		gateway: gw,
		log:     log.With("module", "data_access_service"),
		now:     time.Now,
	}
}

// Create stores the payload and records owner as its owner with no readers.
func (s *DataAccessService) Create(ctx context.Context, owner string, up Upload) (*models.DataAccess, error) {
	if len(up.Data) == 0 {
		return nil, common.FieldErrors{"file": {msgEmptyFile}}
	}

	key := storage.NewKey(s.now())
	if err := s.store.Put(ctx, key, up.Data); err != nil {
		return nil, fmt.Errorf("error storing payload: %w", err)
	}

	d, err := s.repos.DataAccesses().Create(ctx, &models.DataAccess{
		Owner:      owner,
		FileName:   up.FileName,
		StorageKey: key,
	})
	if err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Warn(ctx, "orphaned payload", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("error creating data access: %w", err)
	}

	s.log.Info(ctx, "data access created", "id", d.ID, "data_id", d.DataID, "owner", owner)
	return d, nil
}

func (s *DataAccessService) ListOwned(ctx context.Context, username string) ([]models.DataAccess, error) {
	return s.repos.DataAccesses().ListOwned(ctx, username)
}

func (s *DataAccessService) ListGranted(ctx context.Context, username string) ([]models.DataAccess, error) {
	return s.repos.DataAccesses().ListGranted(ctx, username)
}

// Get returns the record if username may read it.
func (s *DataAccessService) Get(ctx context.Context, username string, id int64) (*models.DataAccess, error) {
	d, err := s.repos.DataAccesses().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsReader(username) {
		return nil, common.ErrNotReader
	}
	return d, nil
}

// normalizeReaders trims, de-duplicates and sorts names and checks they are
// existing accounts other than owner.
func normalizeReaders(ctx context.Context, repos repomanager.Repositories, owner string, names []string) ([]string, error) {
	errs := common.FieldErrors{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		switch {
		case n == "":
			errs.Add("readers", msgBlankReader)
			continue
		case n == owner:
			errs.Add("readers", msgOwnerReader)
			continue
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	existing, err := repos.Users().FindExisting(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("error checking readers: %w", err)
	}
	for _, n := range out {
		if !slices.Contains(existing, n) {
			errs.Add("readers", fmt.Sprintf("Object with username=%s does not exist.", n))
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	slices.Sort(out)
	return out, nil
}

// UpdateReaders replaces the reader list of id. Only the owner may do it.
func (s *DataAccessService) UpdateReaders(ctx context.Context, username string, id int64, readers []string) (*models.DataAccess, error) {
	var out *models.DataAccess
	err := s.repos.WithTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		d, err := repos.DataAccesses().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !d.IsOwner(username) {
			return common.ErrNotOwner
		}

		names, err := normalizeReaders(ctx, repos, d.Owner, readers)
		if err != nil {
			return err
		}
		if err := repos.DataAccesses().SetReaders(ctx, id, names); err != nil {
			return fmt.Errorf("error updating readers: %w", err)
		}

		d.Readers = names
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "readers updated", "id", id, "readers", out.Readers)
	return out, nil
}

// Delete removes the record and its payload. Only the owner may do it.
func (s *DataAccessService) Delete(ctx context.Context, username string, id int64) error {
	d, err := s.repos.DataAccesses().Get(ctx, id)
	if err != nil {
		return err
	}
	if !d.IsOwner(username) {
		return common.ErrNotOwner
	}

	if err := s.repos.DataAccesses().Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, d.StorageKey); err != nil && !errors.Is(err, common.ErrNotFound) {
		s.log.Warn(ctx, "payload not removed", "id", id, "key", d.StorageKey, "error", err)
	}

	s.log.Info(ctx, "data access deleted", "id", id)
	return nil
}

// Download returns the payload of id for username. Readers other than the
// owner receive it transformed by the gateway, which is called with token.
func (s *DataAccessService) Download(ctx context.Context, username, token string, id int64) (*Payload, error) {
	d, err := s.Get(ctx, username, id)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Get(ctx, d.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("error loading payload: %w", err)
	}

	if s.gateway != nil && !d.IsOwner(username) {
		data, err = s.gateway.Reencrypt(gateway.WithToken(ctx, token), gateway.ReencryptRequest{
			DataID:  d.DataID,
			Reader:  username,
			Payload: data,
		})
		if err != nil {
			return nil, fmt.Errorf("error re-encrypting payload: %w", err)
		}
	}

	name := d.FileName
	if name == "" {
		name = fmt.Sprintf("data-%d", d.ID)
	}
	return &Payload{FileName: name, Data: data}, nil
}
