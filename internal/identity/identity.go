// Package identity defines the boundary to the external identity source.
// Session management lives outside this service; the aggregation core only
// needs to know who the current user is.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	folioerrors "github.com/openfolio/folio/internal/errors"
)

// User is the minimal identity the core operates on.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Source resolves the current user. Failure to resolve is the one terminal
// failure mode of an aggregation pass.
type Source interface {
	CurrentUser(ctx context.Context) (User, error)
}

// StoreSource resolves the owner account from the users table. Folio is
// single-owner per installation, so "current user" is the first (and only)
// user row.
type StoreSource struct {
	db *sql.DB
}

// NewStoreSource creates a store-backed identity source.
func NewStoreSource(db *sql.DB) *StoreSource {
	return &StoreSource{db: db}
}

// CurrentUser returns the owner account, or ErrIdentityUnavailable when no
// account exists or the store cannot be reached.
func (s *StoreSource) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name FROM users ORDER BY created_at LIMIT 1`,
	).Scan(&u.ID, &u.Email, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, folioerrors.ErrIdentityUnavailable
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", folioerrors.ErrIdentityUnavailable, err)
	}
	return u, nil
}
