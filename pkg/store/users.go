package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/labtrace/labtrace/pkg/models"
)

// UserStore is the repository for users. labtrace never performs the OAuth
// handshake itself; GetOrCreate is called once an upstream auth proxy has
// already established an email identity.
type UserStore struct {
	db Querier
}

// GetOrCreate looks up a user by email, creating a non-admin user row on
// first sight.
func (s *UserStore) GetOrCreate(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, is_admin, created_at
	`, uuid.NewString(), email)
	return scanUser(row)
}

// Get returns a user by id.
func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT id, email, is_admin, created_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
