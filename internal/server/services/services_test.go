package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/preshare/internal/cryptox"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/server/auth"
	"github.com/dmitrijs2005/preshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/preshare/internal/server/storage"
)

var testParams = cryptox.Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

type fixture struct {
	repos *repomanager.MemoryRepositoryManager
	store *storage.MemoryStorage
	users *UserService
	data  *DataAccessService
}

func newFixture(t *testing.T, gw gateway.Gateway) *fixture {
	t.Helper()
	repos := repomanager.NewMemoryRepositoryManager()
	store := storage.NewMemoryStorage()
	return &fixture{
		repos: repos,
		store: store,
		users: NewUserService(repos, auth.NewManager("secret", time.Hour, nil), testParams, nil),
		data:  NewDataAccessService(repos, store, gw, nil),
	}
}

func (f *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := f.users.Register(context.Background(), Registration{
			Username: n, Email: n + "@example.com", Password1: "password-" + n, Password2: "password-" + n,
		})
		require.NoError(t, err)
	}
}

type recordingGateway struct {
	calls []gateway.ReencryptRequest
	err   error
}

func (g *recordingGateway) Rekey(ctx context.Context, req gateway.RekeyRequest) error { return nil }

func (g *recordingGateway) Reencrypt(ctx context.Context, req gateway.ReencryptRequest) ([]byte, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return append([]byte("re:"), req.Payload...), nil
}

type failingStorage struct {
	storage.Storage
	putErr error
}

func (s failingStorage) Put(ctx context.Context, key string, data []byte) error { return s.putErr }

var errBoom = errors.New("boom")
