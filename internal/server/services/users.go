// Package services holds the business logic of the reference server: account
// management and data-access records.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/cryptox"
	"github.com/dmitrijs2005/preshare/internal/logging"
	"github.com/dmitrijs2005/preshare/internal/server/models"
	"github.com/dmitrijs2005/preshare/internal/server/repositories/repomanager"
)

const (
	msgRequired        = "This field is required."
	msgInvalidUsername = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgInvalidEmail    = "Enter a valid email address."
	msgPasswordShort   = "This password is too short. It must contain at least 8 characters."
	msgPasswordsDiffer = "The two password fields didn't match."
	msgUsernameTaken   = "A user with that username already exists."

	minPasswordLen = 8
	maxUsernameLen = 150
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// TokenManager issues, checks and revokes API tokens.
type TokenManager interface {
	Issue(username string) (string, error)
	Parse(ctx context.Context, raw string) (string, error)
	Revoke(ctx context.Context, raw string) error
}

// Registration is the sign-up form.
type Registration struct {
	Username  string
	Email     string
	Password1 string
	Password2 string
}

type UserService struct {
	repos  repomanager.RepositoryManager
	tokens TokenManager
	params cryptox.Params
	log    logging.Logger

	// dummyHash is verified against when the username is unknown so that
	// both failure paths cost the same.
	dummyHash string
}

func NewUserService(repos repomanager.RepositoryManager, tokens TokenManager, params cryptox.Params, log logging.Logger) *UserService {
	if log == nil {
		log = logging.Discard()
	}
	return &UserService{
		repos:     repos,
		tokens:    tokens,
		params:    params,
		log:       log.With("module", "user_service"),
		dummyHash: cryptox.HashPassword("dummy-password", params),
	}
}

func (r Registration) validate() common.FieldErrors {
	errs := common.FieldErrors{}

	switch {
	case r.Username == "":
		errs.Add("username", msgRequired)
	case len(r.Username) > maxUsernameLen || !usernamePattern.MatchString(r.Username):
		errs.Add("username", msgInvalidUsername)
	}

	if r.Email != "" {
		if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
			errs.Add("email", msgInvalidEmail)
		}
	}

	switch {
	case r.Password1 == "":
		errs.Add("password1", msgRequired)
	case len(r.Password1) < minPasswordLen:
		errs.Add("password1", msgPasswordShort)
	}
	if r.Password2 == "" {
		errs.Add("password2", msgRequired)
	}

	if r.Password1 != "" && r.Password2 != "" && r.Password1 != r.Password2 {
		errs.Add(common.NonFieldErrors, msgPasswordsDiffer)
	}
	return errs
}

// Register validates r and creates the account. Validation failures are
// returned as common.FieldErrors.
func (s *UserService) Register(ctx context.Context, r Registration) (*models.User, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)

	if err := r.validate().Err(); err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: cryptox.HashPassword(r.Password1, s.params),
	}
	u, err := s.repos.Users().Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.FieldErrors{"username": {msgUsernameTaken}}
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.log.Info(ctx, "user registered", "username", u.Username)
	return u, nil
}

// Login checks the credentials and issues a token. Unknown users and wrong
// passwords both yield common.ErrUnauthorized.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repos.Users().GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("error loading user: %w", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, verr := cryptox.VerifyPassword(password, hash)
	if verr != nil {
		s.log.Error(ctx, "stored password hash unreadable", "username", username, "error", verr)
		return "", common.ErrInternal
	}
	if user == nil || !ok {
		return "", common.ErrUnauthorized
	}

	return s.tokens.Issue(user.Username)
}

// Logout revokes token.
func (s *UserService) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Authenticate resolves a token to the username it was issued for.
func (s *UserService) Authenticate(ctx context.Context, token string) (string, error) {
	return s.tokens.Parse(ctx, token)
}

func (s *UserService) Me(ctx context.Context, username string) (*models.User, error) {
	return s.repos.Users().GetByUsername(ctx, username)
}

func (s *UserService) Usernames(ctx context.Context) ([]string, error) {
	return s.repos.Users().ListUsernames(ctx)
}
