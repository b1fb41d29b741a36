package users

import (
	"context"

	"github.com/dmitrijs2005/preshare/internal/server/models"
)

type Repository interface {
	// Create stores user and fills its ID. A taken username yields
	// common.ErrAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsernames(ctx context.Context) ([]string, error)
	// FindExisting returns the subset of usernames that belong to accounts,
	// sorted.
	FindExisting(ctx context.Context, usernames []string) ([]string, error)
}
