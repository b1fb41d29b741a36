// Package auth issues and checks the bearer tokens of the REST API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/preshare/internal/common"
)

// Claims are the registered JWT claims plus the account username.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Manager signs HS256 tokens and consults a Blacklist when parsing them.
type Manager struct {
	secret    []byte
	ttl       time.Duration
	blacklist Blacklist
	now       func() time.Time
}

func NewManager(secret string, ttl time.Duration, bl Blacklist) *Manager {
	if bl == nil {
		bl = NewMemoryBlacklist()
	}
	return &Manager{secret: []byte(secret), ttl: ttl, blacklist: bl, now: time.Now}
}

// Issue returns a signed token for username with a fresh jti.
func (m *Manager) Issue(username string) (string, error) {
	now := m.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Username: username,
	})

	s, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (m *Manager) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid || claims.Username == "" || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// Parse validates raw and returns its username. Malformed, expired and
// revoked tokens all yield common.ErrInvalidToken.
func (m *Manager) Parse(ctx context.Context, raw string) (string, error) {
	claims, err := m.parse(raw)
	if err != nil {
		return "", err
	}

	revoked, err := m.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return "", common.ErrInvalidToken
	}
	return claims.Username, nil
}

// Revoke blacklists raw until it would have expired anyway. Revoking an
// invalid token is a no-op.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	claims, err := m.parse(raw)
	if errors.Is(err, common.ErrInvalidToken) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}
