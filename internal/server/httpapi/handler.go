// Package httpapi exposes the reference server over a DRF-compatible REST
// API: token authentication, JSON bodies and {"detail": ...} errors.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/preshare/internal/logging"
	"github.com/dmitrijs2005/preshare/internal/server/models"
	"github.com/dmitrijs2005/preshare/internal/server/services"
)

type UserService interface {
	Register(ctx context.Context, r services.Registration) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (string, error)
	Me(ctx context.Context, username string) (*models.User, error)
	Usernames(ctx context.Context) ([]string, error)
}

type DataAccessService interface {
	Create(ctx context.Context, owner string, up services.Upload) (*models.DataAccess, error)
	ListOwned(ctx context.Context, username string) ([]models.DataAccess, error)
	ListGranted(ctx context.Context, username string) ([]models.DataAccess, error)
	Get(ctx context.Context, username string, id int64) (*models.DataAccess, error)
	UpdateReaders(ctx context.Context, username string, id int64, readers []string) (*models.DataAccess, error)
	Delete(ctx context.Context, username string, id int64) error
	Download(ctx context.Context, username, token string, id int64) (*services.Payload, error)
}

type Handler struct {
	users     UserService
	data      DataAccessService
	log       logging.Logger
	maxUpload int64
}

func NewHandler(users UserService, data DataAccessService, maxUpload int64, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{users: users, data: data, log: log.With("module", "httpapi"), maxUpload: maxUpload}
}

// Routes returns the API with request ids and request logging applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	const jsonLimit = 1 << 20

	mux.HandleFunc("POST /rest-auth/login/{$}", limitBody(jsonLimit, h.login))
	mux.HandleFunc("POST /rest-auth/logout/{$}", h.requireAuth(h.logout))
	mux.HandleFunc("POST /rest-auth/registration/{$}", limitBody(jsonLimit, h.register))
	mux.HandleFunc("GET /rest-auth/user", h.requireAuth(h.currentUser))
	mux.HandleFunc("GET /rest-auth/user/{$}", h.requireAuth(h.currentUser))

	mux.HandleFunc("GET /data-accesses/owned", h.requireAuth(h.listOwned))
	mux.HandleFunc("GET /data-accesses/granted", h.requireAuth(h.listGranted))
	mux.HandleFunc("POST /data-accesses/create", h.requireAuth(limitBody(h.maxUpload, h.create)))
	mux.HandleFunc("GET /data-accesses/{id}", h.requireAuth(h.get))
	mux.HandleFunc("POST /data-accesses/{id}/{$}", h.requireAuth(limitBody(jsonLimit, h.updateReaders)))
	mux.HandleFunc("DELETE /data-accesses/{id}", h.requireAuth(h.delete))
	mux.HandleFunc("DELETE /data-accesses/{id}/{$}", h.requireAuth(h.delete))
	mux.HandleFunc("GET /data-accesses/{id}/download", h.requireAuth(h.download))

	mux.HandleFunc("GET /authorization/usernames", h.requireAuth(h.usernames))

	return withRequestID(requestLogging(h.log)(mux))
}
