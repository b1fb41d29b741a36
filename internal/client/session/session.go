// Package session owns the authenticated identity and the bearer credential
// of the client.
//
// The Manager moves between two states. Anonymous holds no token and no
// identity. Authenticated holds both. Login, Restore, Logout and Invalidate
// are the only transitions; the identity is non-nil exactly when the state is
// Authenticated. Manager implements client.TokenSource, so every request
// builder reads the credential from here and reports a rejected credential
// back through Invalidate.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/preshare/internal/client/client"
	"github.com/dmitrijs2005/preshare/internal/client/models"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// API is the part of client.Client the manager needs.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req client.RegisterRequest) error
	CurrentUser(ctx context.Context) (*models.Identity, error)
}

// Store persists the credential between runs.
type Store interface {
	Save(ctx context.Context, token, username string) error
	Load(ctx context.Context) (token, username string, ok bool, err error)
	Clear(ctx context.Context) error
}

// Session is a snapshot of an authenticated principal.
type Session struct {
	Token    string
	Identity models.Identity
}

const storeTimeout = 5 * time.Second

type Manager struct {
	api   API
	store Store
	log   logging.Logger

	mu       sync.RWMutex
	token    string
	identity *models.Identity
	onEnd    []func()
}

// NewManager builds an anonymous manager. store may be nil, in which case
// nothing survives the process.
func NewManager(api API, store Store, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{api: api, store: store, log: log}
}

// OnEnd registers fn to run whenever an authenticated session ends, by
// logout or by server rejection.
func (m *Manager) OnEnd(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

// Token returns the credential sent with requests, "" when anonymous.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity != nil {
		return Authenticated
	}
	return Anonymous
}

// CurrentIdentity returns a copy of the identity of the authenticated user.
func (m *Manager) CurrentIdentity() (*models.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return nil, false
	}
	id := *m.identity
	return &id, true
}

// Username is a shortcut for CurrentIdentity().Username.
func (m *Manager) Username() string {
	if id, ok := m.CurrentIdentity(); ok {
		return id.Username
	}
	return ""
}

// Login exchanges credentials for a token, loads the identity and persists
// the token. A session that is already open is ended first, hooks included,
// once the server accepted the new credentials. If the identity cannot be
// loaded the manager is left anonymous with nothing persisted.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	token, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if m.State() == Authenticated {
		m.log.Info(ctx, "ending previous session", "username", m.Username())
		m.end(ctx)
	}

	id, err := m.authenticate(ctx, token)
	if err != nil {
		m.end(ctx)
		return nil, fmt.Errorf("login: %w", err)
	}

	if m.store != nil {
		if err := m.store.Save(ctx, token, id.Username); err != nil {
			m.log.Warn(ctx, "failed to persist session", "error", err)
		}
	}

	m.log.Info(ctx, "logged in", "username", id.Username)
	return &Session{Token: token, Identity: *id}, nil
}

// authenticate installs token and fetches the identity with it. On failure
// the in-memory credential is dropped; the caller decides about the store.
func (m *Manager) authenticate(ctx context.Context, token string) (*models.Identity, error) {
	m.mu.Lock()
	m.token = token
	m.identity = nil
	m.mu.Unlock()

	id, err := m.api.CurrentUser(ctx)
	if err != nil {
		m.reset()
		return nil, fmt.Errorf("fetch current user: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Invalidate may have run while the identity was in flight.
	if m.token != token {
		return nil, client.ErrInvalidToken
	}
	m.identity = id
	cp := *id
	return &cp, nil
}

// Logout invalidates the token on the server and always clears local state,
// even when the server call fails. The server error is returned; a token the
// server already rejected is not reported.
func (m *Manager) Logout(ctx context.Context) error {
	var err error
	if m.Token() != "" {
		err = m.api.Logout(ctx)
	}

	m.end(ctx)

	if err != nil && !errors.Is(err, client.ErrInvalidToken) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Register creates an account. A password mismatch fails locally without a
// request; everything else is decided by the server.
func (m *Manager) Register(ctx context.Context, username, email, password, confirm string) error {
	if password != confirm {
		return fmt.Errorf("register: %w: passwords do not match", client.ErrValidation)
	}
	err := m.api.Register(ctx, client.RegisterRequest{
		Username:  username,
		Email:     email,
		Password1: password,
		Password2: confirm,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	m.log.Info(ctx, "registered", "username", username)
	return nil
}

// Restore reloads a persisted token and validates it against the server.
// It returns false when nothing was stored. A token the server rejects is
// removed from the store; on transport failure it is kept for the next try.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	token, _, ok, err := m.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return false, nil
	}

	id, err := m.authenticate(ctx, token)
	if err != nil {
		if !errors.Is(err, client.ErrTransport) {
			m.clearStore(ctx)
		}
		return false, fmt.Errorf("restore session: %w", err)
	}

	m.log.Info(ctx, "session restored", "username", id.Username)
	return true, nil
}

// Invalidate drops the credential after the server rejected it.
func (m *Manager) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	m.log.Warn(ctx, "session invalidated by server")
	m.end(ctx)
}

func (m *Manager) end(ctx context.Context) {
	m.mu.Lock()
	wasAuthenticated := m.identity != nil
	m.token = ""
	m.identity = nil
	hooks := append([]func(){}, m.onEnd...)
	m.mu.Unlock()

	m.clearStore(ctx)

	if wasAuthenticated {
		for _, fn := range hooks {
			fn()
		}
	}
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.identity = nil
}

func (m *Manager) clearStore(ctx context.Context) {
	if m.store == nil {
		return
	}
	// logout must clear local state even when the caller's context is done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn(ctx, "failed to clear persisted session", "error", err)
	}
}
