package client

import (
	"context"

	"github.com/dmitrijs2005/preshare/internal/client/models"
)

// TokenSource supplies the current credential. Token returns "" when the
// session is anonymous.
type TokenSource interface {
	Token() string
	Invalidate()
}

// RegisterRequest mirrors the registration form of the service.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

type Client interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, req RegisterRequest) error
	CurrentUser(ctx context.Context) (*models.Identity, error)

	ListOwned(ctx context.Context) ([]models.DataAccess, error)
	ListGranted(ctx context.Context) ([]models.DataAccess, error)
	Get(ctx context.Context, id int64) (models.DataAccess, error)
	Create(ctx context.Context, payload models.Blob) (models.DataAccess, error)
	UpdateReaders(ctx context.Context, id int64, readers []string) (models.DataAccess, error)
	Delete(ctx context.Context, id int64) error
	Download(ctx context.Context, id int64) (models.Blob, error)

	Usernames(ctx context.Context) ([]string, error)
}
