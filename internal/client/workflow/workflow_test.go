package workflow

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/client/registry"
	"github.com/dmitrijs2005/preshare/internal/client/selection"
	"github.com/dmitrijs2005/preshare/internal/gateway"
	"github.com/dmitrijs2005/preshare/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer behaves like the service for a single signed-in user.
type fakeServer struct {
	mu      sync.Mutex
	user    string
	nextID  int64
	records map[int64]models.DataAccess
	blobs   map[int64][]byte

	updates   atomic.Int32
	updateErr error
	// rewrite lets a test change what the server stores on update
	rewrite   func([]string) []string
	inUpdate  atomic.Int32
	maxUpdate atomic.Int32
}

func newFakeServer(user string) *fakeServer {
	return &fakeServer{user: user, records: map[int64]models.DataAccess{}, blobs: map[int64][]byte{}}
}

func (s *fakeServer) put(d models.DataAccess) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[d.ID] = d.Clone()
}

func (s *fakeServer) ListOwned(ctx context.Context) ([]models.DataAccess, error) {
	return s.filter(func(d models.DataAccess) bool { return d.Owner == s.user }), nil
}

func (s *fakeServer) ListGranted(ctx context.Context) ([]models.DataAccess, error) {
	return s.filter(func(d models.DataAccess) bool { return slices.Contains(d.Readers, s.user) }), nil
}

func (s *fakeServer) filter(keep func(models.DataAccess) bool) []models.DataAccess {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Sorted(maps.Keys(s.records))
	var out []models.DataAccess
	for _, id := range ids {
		if d := s.records[id]; keep(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

func (s *fakeServer) Get(ctx context.Context, id int64) (models.DataAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[id]
	if !ok {
		return models.DataAccess{}, client.ErrNotFound
	}
	if !d.CanRead(s.user) {
		return models.DataAccess{}, client.ErrForbidden
	}
	return d.Clone(), nil
}

func (s *fakeServer) Create(ctx context.Context, payload models.Blob) (models.DataAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	d := models.DataAccess{ID: s.nextID, DataID: 100 + s.nextID, Owner: s.user, Readers: []string{}}
	s.records[d.ID] = d
	s.blobs[d.ID] = payload.Data
	return d.Clone(), nil
}

func (s *fakeServer) UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error) {
	n := s.inUpdate.Add(1)
	defer s.inUpdate.Add(-1)
	for {
		m := s.maxUpdate.Load()
		if n <= m || s.maxUpdate.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	s.updates.Add(1)
	if s.updateErr != nil {
		return models.DataAccess{}, s.updateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[id]
	if !ok {
		return models.DataAccess{}, client.ErrNotFound
	}
	if d.Owner != s.user {
		return models.DataAccess{}, client.ErrNotOwner
	}
	if s.rewrite != nil {
		readers = s.rewrite(readers)
	}
	d.Readers = slices.Clone(readers)
	s.records[id] = d
	return d.Clone(), nil
}

func (s *fakeServer) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[id]
	if !ok {
		return client.ErrNotFound
	}
	if d.Owner != s.user {
		return client.ErrNotOwner
	}
	delete(s.records, id)
	return nil
}

func (s *fakeServer) Download(ctx context.Context, id int64) (models.Blob, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return models.Blob{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Blob{Name: "payload.bin", Data: s.blobs[d.ID]}, nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []gateway.RekeyRequest
	err   error
}

func (g *fakeGateway) Rekey(ctx context.Context, req gateway.RekeyRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return g.err
}

func (g *fakeGateway) Reencrypt(ctx context.Context, req gateway.ReencryptRequest) ([]byte, error) {
	return req.Payload, nil
}

type user string

func (u user) Username() string { return string(u) }

type fixture struct {
	srv *fakeServer
	reg *registry.Registry
	gw  *fakeGateway
	wf  *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := newFakeServer("bob")
	reg := registry.New(srv, nil)
	gw := &fakeGateway{}
	wf := New(reg, user("bob"), WithGateway(gw, 2))
	return &fixture{srv: srv, reg: reg, gw: gw, wf: wf}
}

func TestScenario_CreateGrantRevokeDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.wf.Upload(ctx, models.Blob{Name: "a.txt", Data: []byte("secret")})
	require.NoError(t, err)
	assert.Equal(t, "bob", d.Owner)
	assert.Empty(t, d.Readers)

	sel := selection.New(f.reg, selection.ModeReplace)
	f.wf.Track(sel)
	_, ok := sel.Toggle(d.ID)
	require.True(t, ok)

	granted, err := f.wf.Grant(ctx, d.ID, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, granted.Readers)
	assert.Equal(t, "bob", granted.Owner)

	revoked, err := f.wf.Revoke(ctx, d.ID, []string{"alice"})
	require.NoError(t, err)
	assert.Empty(t, revoked.Readers)
	assert.Equal(t, "bob", revoked.Owner)

	require.Len(t, f.gw.calls, 2)
	assert.Equal(t, gateway.RekeyRequest{DataID: d.DataID, Granted: []string{"alice"}, Revoked: []string{}, Threshold: 2}, f.gw.calls[0])
	assert.Equal(t, gateway.RekeyRequest{DataID: d.DataID, Granted: []string{}, Revoked: []string{"alice"}, Threshold: 2}, f.gw.calls[1])

	require.NoError(t, f.wf.Delete(ctx, d.ID))
	_, has := sel.SelectedID()
	assert.False(t, has, "delete clears the selection")
	_, ok = f.reg.Lookup(d.ID)
	assert.False(t, ok)
}

func TestGrantThenRevokeRestoresReaders(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{"carol", "dave"}})
	ctx := context.Background()

	_, err := f.wf.Grant(ctx, 1, []string{"alice"})
	require.NoError(t, err)
	d, err := f.wf.Revoke(ctx, 1, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, d.Readers)
}

func TestIdempotentGrantAndRevokeSkipServer(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{"alice"}})
	ctx := context.Background()

	d, err := f.wf.Grant(ctx, 1, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Readers)

	d, err = f.wf.Revoke(ctx, 1, []string{"nobody"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Readers)

	assert.Zero(t, f.srv.updates.Load())
	assert.Empty(t, f.gw.calls)
}

func TestGrant_ServerResponseIsAuthoritative(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{}})
	// server drops unknown users
	f.srv.rewrite = func(r []string) []string {
		return slices.DeleteFunc(r, func(s string) bool { return s == "ghost" })
	}

	d, err := f.wf.Grant(context.Background(), 1, []string{"alice", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Readers)
	require.Len(t, f.gw.calls, 1)
	assert.Equal(t, []string{"alice"}, f.gw.calls[0].Granted)
}

func TestGrant_KnownNonOwnedFailsFast(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "carol", Readers: []string{"bob"}})
	ctx := context.Background()

	_, err := f.reg.Fetch(ctx, registry.Granted)
	require.NoError(t, err)

	_, err = f.wf.Grant(ctx, 1, []string{"alice"})
	require.ErrorIs(t, err, client.ErrForbidden)
	assert.Zero(t, f.srv.updates.Load())

	require.ErrorIs(t, f.wf.Delete(ctx, 1), client.ErrForbidden)
}

func TestGrant_UnknownNonOwnedCheckedOnFreshRecord(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "carol", Readers: []string{"bob"}})

	_, err := f.wf.Revoke(context.Background(), 1, []string{"bob"})
	require.ErrorIs(t, err, client.ErrNotOwner)
	assert.Zero(t, f.srv.updates.Load())
}

func TestGrant_ServerForbidden(t *testing.T) {
	f := newFixture(t)
	f.wf = New(f.reg, nil, WithGateway(f.gw, 1))
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "carol", Readers: []string{"bob"}})

	_, err := f.wf.Grant(context.Background(), 1, []string{"alice"})
	require.ErrorIs(t, err, client.ErrForbidden)
}

func TestGrant_OwnerCannotBeReader(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{}})

	_, err := f.wf.Grant(context.Background(), 1, []string{"bob"})
	require.ErrorIs(t, err, client.ErrValidation)
}

func TestGrant_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.Grant(context.Background(), 42, []string{"alice"})
	require.ErrorIs(t, err, client.ErrNotFound)
}

func TestGrant_RekeyFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{}})
	f.gw.err = gateway.ErrUnavailable
	_, err := f.reg.Fetch(context.Background(), registry.Owned)
	require.NoError(t, err)

	d, err := f.wf.Grant(context.Background(), 1, []string{"alice"})
	require.ErrorIs(t, err, client.ErrPartialFailure)
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Equal(t, []string{"alice"}, d.Readers, "the updated record is still returned")

	local, ok := f.reg.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, local.Readers)
}

func TestGrant_NoGatewayConfiguredWarns(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.wf = New(f.reg, user("bob"), WithLogger(logging.New(&logs, "text", "warn")))
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{}})

	d, err := f.wf.Grant(context.Background(), 1, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Readers)
	assert.Contains(t, logs.String(), "no gateway is configured")
	assert.Contains(t, logs.String(), "data_id=11")
}

func TestGrant_UpdateError(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{}})
	f.srv.updateErr = client.ErrTransport

	_, err := f.wf.Grant(context.Background(), 1, []string{"alice"})
	require.ErrorIs(t, err, client.ErrTransport)
	assert.Empty(t, f.gw.calls)
}

func TestConcurrentGrantsOnSameRecordAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.srv.put(models.DataAccess{ID: 1, DataID: 11, Owner: "bob", Readers: []string{}})

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.wf.Grant(context.Background(), 1, []string{n})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.srv.maxUpdate.Load())
	d, err := f.srv.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, names, d.Readers, "no grant is lost")
	assert.Zero(t, f.wf.locks.size())
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wf.Upload(ctx, models.Blob{Name: "x"})
	require.ErrorIs(t, err, client.ErrValidation)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	d, err := f.wf.UploadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), f.srv.blobs[d.ID])

	_, err = f.wf.UploadFile(ctx, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDelete_NotFoundStillClearsSelection(t *testing.T) {
	f := newFixture(t)
	sel := selection.New(selection.List{{ID: 9, Owner: "bob"}}, selection.ModeReplace)
	f.wf.Track(sel)
	sel.Toggle(9)

	err := f.wf.Delete(context.Background(), 9)
	require.ErrorIs(t, err, client.ErrNotFound)
	_, has := sel.SelectedID()
	assert.False(t, has)
}

func TestDelete_OtherSelectionUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.wf.Upload(ctx, models.Blob{Data: []byte("a")})
	require.NoError(t, err)
	b, err := f.wf.Upload(ctx, models.Blob{Data: []byte("b")})
	require.NoError(t, err)

	sel := selection.New(f.reg, selection.ModeReplace)
	f.wf.Track(sel)
	sel.Toggle(b.ID)

	require.NoError(t, f.wf.Delete(ctx, a.ID))
	id, has := sel.SelectedID()
	assert.True(t, has)
	assert.Equal(t, b.ID, id)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.wf.Upload(ctx, models.Blob{Data: []byte("payload")})
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := f.wf.Download(ctx, d.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "payload.bin"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	f.srv.put(models.DataAccess{ID: 50, DataID: 150, Owner: "carol", Readers: []string{"dave"}})
	_, err = f.wf.Download(ctx, 50, dir)
	require.ErrorIs(t, err, client.ErrForbidden)
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex
	u1 := k.Lock(1)
	u2 := k.Lock(2)
	assert.Equal(t, 2, k.size())

	acquired := make(chan struct{})
	go func() {
		u := k.Lock(1)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same id must wait")
	case <-time.After(50 * time.Millisecond):
	}
	u1()
	<-acquired
	u2()
	assert.Zero(t, k.size())
}
