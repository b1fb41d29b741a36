package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	token       string
	invalidated atomic.Int32
}

func (f *fakeTokens) Token() string { return f.token }
func (f *fakeTokens) Invalidate()   { f.invalidated.Add(1) }

func newTestClient(t *testing.T, h http.Handler) (*HTTPClient, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tokens := &fakeTokens{token: "tok-1"}
	c, err := NewHTTPClient(srv.URL, WithTokenSource(tokens), WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c, tokens
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com")
	require.Error(t, err)
	_, err = NewHTTPClient("://bad")
	require.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest-auth/login/", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, map[string]string{"username": "bob", "password": "pw"}, in)

		writeJSON(w, http.StatusOK, map[string]string{"key": "abc"})
	}))

	key, err := c.Login(context.Background(), "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
}

func TestLogin_WrongPassword(t *testing.T) {
	c, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"non_field_errors": []string{"Unable to log in with provided credentials."},
		})
	}))

	_, err := c.Login(context.Background(), "bob", "bad")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Unable to log in with provided credentials.", apiErr.Message())
	assert.Zero(t, tokens.invalidated.Load())
}

func TestLogin_EmptyKey(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	}))
	_, err := c.Login(context.Background(), "bob", "pw")
	require.ErrorIs(t, err, ErrServer)
}

func TestInvalidToken_InvalidatesSource(t *testing.T) {
	c, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token tok-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
	}))

	_, err := c.ListOwned(context.Background())
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.EqualValues(t, 1, tokens.invalidated.Load())
}

func TestUnauthorizedOtherDetail_DoesNotInvalidate(t *testing.T) {
	c, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
	}))

	_, err := c.ListGranted(context.Background())
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, tokens.invalidated.Load())
}

func TestAnonymousSendsNoHeader(t *testing.T) {
	c, tokens := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []string{"alice"})
	}))
	tokens.token = ""

	names, err := c.Usernames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}

func TestListOwned_DecodesAndNormalizes(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data-accesses/owned", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":1,"data_id":10,"owner":"bob","readers":["alice","carol"]},{"id":2,"data_id":11,"owner":"bob","readers":null}]`)
	}))

	got, err := c.ListOwned(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.DataAccess{ID: 1, DataID: 10, Owner: "bob", Readers: []string{"alice", "carol"}}, got[0])
	assert.NotNil(t, got[1].Readers)
}

func TestListGranted_EmptyArray(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data-accesses/granted", r.URL.Path)
		_, _ = io.WriteString(w, `null`)
	}))

	got, err := c.ListGranted(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCreate_SendsMultipartFile(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/data-accesses/create", r.URL.Path)

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "hello", string(b))
		assert.Equal(t, "note.txt", hdr.Filename)

		writeJSON(w, http.StatusCreated, models.DataAccess{ID: 7, DataID: 70, Owner: "bob", Readers: []string{}})
	}))

	got, err := c.Create(context.Background(), models.Blob{Name: "note.txt", Data: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Empty(t, got.Readers)
}

func TestCreate_CancelledMidBodyIsTransportError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":7,"data_id":`)
		w.(http.Flusher).Flush()
		cancel()
		<-r.Context().Done()
	}))

	_, err := c.Create(ctx, models.Blob{Name: "note.txt", Data: []byte("hello")})
	require.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrServer)
}

func TestCreate_MalformedBodyIsServerError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `not json`)
	}))

	_, err := c.Create(context.Background(), models.Blob{Data: []byte("hello")})
	require.ErrorIs(t, err, ErrServer)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestUpdateReaders_PostsFullSet(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/data-accesses/3/", r.URL.Path)

		var in map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{}, in["readers"])

		writeJSON(w, http.StatusOK, models.DataAccess{ID: 3, Owner: "bob", Readers: []string{}})
	}))

	got, err := c.UpdateReaders(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
}

func TestUpdateReaders_ForbiddenIsNotOwner(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
	}))

	_, err := c.UpdateReaders(context.Background(), 3, []string{"alice"})
	require.ErrorIs(t, err, ErrNotOwner)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDelete(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/data-accesses/5", r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))

	require.NoError(t, c.Delete(context.Background(), 5))

	status.Store(http.StatusNotFound)
	require.ErrorIs(t, c.Delete(context.Background(), 5), ErrNotFound)

	status.Store(http.StatusForbidden)
	require.ErrorIs(t, c.Delete(context.Background(), 5), ErrNotOwner)
}

func TestDownload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data-accesses/1/download":
			w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
			_, _ = w.Write([]byte{1, 2, 3})
		case "/data-accesses/2/download":
			_, _ = w.Write([]byte("x"))
		default:
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "forbidden"})
		}
	}))

	b, err := c.Download(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", b.Name)
	assert.Equal(t, []byte{1, 2, 3}, b.Data)

	b, err = c.Download(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "data-2", b.Name)

	_, err = c.Download(context.Background(), 9)
	require.ErrorIs(t, err, ErrForbidden)
	require.NotErrorIs(t, err, ErrNotOwner)
}

func TestRegister_ValidationFields(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "bob", in.Username)
		assert.Equal(t, "pw", in.Password2)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"username": []string{"A user with that username already exists."},
			"email":    "Enter a valid email address.",
		})
	}))

	err := c.Register(context.Background(), RegisterRequest{Username: "bob", Email: "x", Password1: "pw", Password2: "pw"})
	require.ErrorIs(t, err, ErrValidation)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"Enter a valid email address."}, apiErr.Fields["email"])
	assert.Equal(t, "email: Enter a valid email address.", apiErr.Message())
	assert.Contains(t, apiErr.Error(), "username: A user with that username already exists.")
}

func TestCurrentUser(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest-auth/user", r.URL.Path)
		writeJSON(w, http.StatusOK, models.Identity{Username: "bob", Email: "bob@example.com"})
	}))

	id, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Username)
}

func TestServerErrorAndPlainBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Get(context.Background(), 1)
	require.ErrorIs(t, err, ErrServer)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Detail)
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), 1)
	require.ErrorIs(t, err, ErrTransport)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestBaseURLPrefixIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rest-auth/logout/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL + "/api")
	require.NoError(t, err)
	require.NoError(t, c.Logout(context.Background()))
}
