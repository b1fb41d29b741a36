package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu sync.Mutex

	owned      []models.DataAccess
	granted    []models.DataAccess
	listErr    error
	listCalls  int
	listHook   func(ctx context.Context)
	getResp    models.DataAccess
	getErr     error
	createResp models.DataAccess
	createErr  error
	created    []models.Blob
	updateResp models.DataAccess
	updateErr  error
	updated    [][]string
	deleteErr  error
	deleted    []int64
	download   models.Blob
	downErr    error
}

func (f *fakeAPI) ListOwned(ctx context.Context) ([]models.DataAccess, error) {
	return f.list(ctx, f.owned)
}

func (f *fakeAPI) ListGranted(ctx context.Context) ([]models.DataAccess, error) {
	return f.list(ctx, f.granted)
}

func (f *fakeAPI) list(ctx context.Context, items []models.DataAccess) ([]models.DataAccess, error) {
	f.mu.Lock()
	f.listCalls++
	hook := f.listHook
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.DataAccess(nil), items...), nil
}

func (f *fakeAPI) Get(ctx context.Context, id int64) (models.DataAccess, error) {
	return f.getResp, f.getErr
}

func (f *fakeAPI) Create(ctx context.Context, payload models.Blob) (models.DataAccess, error) {
	f.created = append(f.created, payload)
	return f.createResp, f.createErr
}

func (f *fakeAPI) UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error) {
	f.updated = append(f.updated, readers)
	return f.updateResp, f.updateErr
}

func (f *fakeAPI) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeAPI) Download(ctx context.Context, id int64) (models.Blob, error) {
	return f.download, f.downErr
}

func rec(id int64, owner string, readers ...string) models.DataAccess {
	if readers == nil {
		readers = []string{}
	}
	return models.DataAccess{ID: id, DataID: id * 10, Owner: owner, Readers: readers}
}

func collect(t *testing.T, seq func(func(models.DataAccess, error) bool)) ([]models.DataAccess, error) {
	t.Helper()
	var out []models.DataAccess
	for d, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

func TestListOwned_RefetchesEveryIteration(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob"), rec(2, "bob", "alice")}}
	r := New(api, nil)

	seq := r.ListOwned(context.Background())
	got, err := collect(t, seq)
	require.NoError(t, err)
	assert.Equal(t, api.owned, got)

	api.owned = []models.DataAccess{rec(3, "bob")}
	got, err = collect(t, seq)
	require.NoError(t, err)
	assert.Equal(t, []models.DataAccess{rec(3, "bob")}, got)
	assert.Equal(t, 2, api.listCalls)

	assert.Equal(t, []models.DataAccess{rec(3, "bob")}, r.Snapshot(Owned))
	_, ok := r.Lookup(1)
	assert.False(t, ok, "snapshot is replaced, not merged")
}

func TestListGranted_EarlyBreak(t *testing.T) {
	api := &fakeAPI{granted: []models.DataAccess{rec(1, "carol", "bob"), rec(2, "dave", "bob")}}
	r := New(api, nil)

	n := 0
	for _, err := range r.ListGranted(context.Background()) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
	assert.Len(t, r.Snapshot(Granted), 2)
}

func TestList_ErrorYieldedOnce(t *testing.T) {
	api := &fakeAPI{listErr: client.ErrTransport}
	r := New(api, nil)

	n := 0
	for _, err := range r.ListOwned(context.Background()) {
		n++
		require.ErrorIs(t, err, client.ErrTransport)
	}
	assert.Equal(t, 1, n)
}

func TestCreate(t *testing.T) {
	api := &fakeAPI{createResp: rec(5, "bob")}
	r := New(api, nil)

	_, err := r.Create(context.Background(), models.Blob{})
	require.ErrorIs(t, err, client.ErrValidation)
	assert.Empty(t, api.created)

	d, err := r.Create(context.Background(), models.Blob{Name: "a", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.ID)
	assert.Empty(t, d.Readers)

	got, ok := r.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Owner)

	api.createErr = client.ErrServer
	_, err = r.Create(context.Background(), models.Blob{Data: []byte("x")})
	require.ErrorIs(t, err, client.ErrServer)
}

func TestUpdateReaders_ResponseReplacesLocalCopy(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob", "carol")}}
	r := New(api, nil)
	_, err := r.Fetch(context.Background(), Owned)
	require.NoError(t, err)

	// server returns a set that differs from what was sent
	api.updateResp = rec(1, "bob", "alice", "dave")
	d, err := r.UpdateReaders(context.Background(), 1, []string{"carol", "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "dave"}, d.Readers)

	local, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "dave"}, local.Readers)
	assert.Equal(t, [][]string{{"carol", "alice"}}, api.updated)
}

func TestUpdateReaders_ErrorLeavesLocalCopy(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob", "carol")}, updateErr: client.ErrNotOwner}
	r := New(api, nil)
	_, err := r.Fetch(context.Background(), Owned)
	require.NoError(t, err)

	_, err = r.UpdateReaders(context.Background(), 1, nil)
	require.ErrorIs(t, err, client.ErrForbidden)

	local, _ := r.Lookup(1)
	assert.Equal(t, []string{"carol"}, local.Readers)
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob"), rec(2, "bob")}}
	r := New(api, nil)
	_, err := r.Fetch(context.Background(), Owned)
	require.NoError(t, err)

	require.NoError(t, r.Delete(context.Background(), 1))
	_, ok := r.Lookup(1)
	assert.False(t, ok)

	api.deleteErr = client.ErrNotOwner
	require.ErrorIs(t, r.Delete(context.Background(), 2), client.ErrNotOwner)
	_, ok = r.Lookup(2)
	assert.True(t, ok, "rejected delete keeps the record")

	api.deleteErr = client.ErrNotFound
	require.ErrorIs(t, r.Delete(context.Background(), 2), client.ErrNotFound)
	_, ok = r.Lookup(2)
	assert.False(t, ok, "a record the server no longer has is dropped")
}

func TestGet(t *testing.T) {
	api := &fakeAPI{granted: []models.DataAccess{rec(4, "carol", "bob")}}
	r := New(api, nil)
	_, err := r.Fetch(context.Background(), Granted)
	require.NoError(t, err)

	api.getResp = rec(4, "carol", "bob", "alice")
	d, err := r.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, d.Readers)
	local, _ := r.Lookup(4)
	assert.Equal(t, d, local)

	api.getErr = client.ErrNotFound
	_, err = r.Get(context.Background(), 4)
	require.ErrorIs(t, err, client.ErrNotFound)
	_, ok := r.Lookup(4)
	assert.False(t, ok)
}

func TestDownload(t *testing.T) {
	api := &fakeAPI{download: models.Blob{Name: "x", Data: []byte("y")}}
	r := New(api, nil)

	b, err := r.Download(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "x", b.Name)

	api.downErr = client.ErrForbidden
	_, err = r.Download(context.Background(), 1)
	require.ErrorIs(t, err, client.ErrForbidden)
}

func TestLookupReturnsCopy(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob", "alice")}}
	r := New(api, nil)
	_, err := r.Fetch(context.Background(), Owned)
	require.NoError(t, err)

	d, _ := r.Lookup(1)
	d.Readers[0] = "mallory"
	again, _ := r.Lookup(1)
	assert.Equal(t, "alice", again.Readers[0])
}

func TestReset_DiscardsInFlightResponse(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob")}}
	r := New(api, nil)
	api.listHook = func(context.Context) { r.Reset() }

	_, err := r.Fetch(context.Background(), Owned)
	require.ErrorIs(t, err, ErrStale)
	assert.Empty(t, r.Snapshot(Owned))
}

func TestView_CloseSuppressesLateResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob")}}
	api.listHook = func(ctx context.Context) {
		close(started)
		<-release
	}
	r := New(api, nil)
	v := r.NewView(context.Background(), Owned)

	errc := make(chan error, 1)
	go func() {
		_, err := v.Refresh()
		errc <- err
	}()

	<-started
	v.Close()
	close(release)

	require.ErrorIs(t, <-errc, ErrStale)
	assert.Empty(t, v.Items())
	assert.Empty(t, r.Snapshot(Owned))

	_, err := v.Refresh()
	require.ErrorIs(t, err, ErrClosed)
	v.Close()
}

func TestView_NewerRefreshWins(t *testing.T) {
	api := &fakeAPI{owned: []models.DataAccess{rec(1, "bob")}}
	r := New(api, nil)
	v := r.NewView(context.Background(), Owned)
	defer v.Close()

	first := true
	var firstErr error
	api.listHook = func(context.Context) {
		if !first {
			return
		}
		first = false
		// a second refresh starts and completes while the first is in flight
		api.owned = []models.DataAccess{rec(2, "bob")}
		_, firstErr = v.Refresh()
		api.owned = []models.DataAccess{rec(1, "bob")}
	}

	_, err := v.Refresh()
	require.ErrorIs(t, err, ErrStale)
	require.NoError(t, firstErr)
	assert.Equal(t, []models.DataAccess{rec(2, "bob")}, v.Items())
	assert.Equal(t, []models.DataAccess{rec(2, "bob")}, r.Snapshot(Owned))
}

func TestView_ErrorPassesThrough(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("boom")}
	r := New(api, nil)
	v := r.NewView(context.Background(), Granted)
	defer v.Close()

	assert.Equal(t, Granted, v.Partition())
	_, err := v.Refresh()
	require.EqualError(t, err, "list granted: boom")
}
