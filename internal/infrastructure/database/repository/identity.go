package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdentityRepository reads the phone to account links written by the
// registration flow.
type IdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// FindAccountByPhone returns the account linked to phone exactly as stored
func (r *IdentityRepository) FindAccountByPhone(ctx context.Context, phone string) (string, error) {
	var accountID string
	err := r.pool.QueryRow(ctx,
		`SELECT account_id FROM identity_links WHERE phone = $1`,
		phone,
	).Scan(&accountID)
	if err != nil {
		return "", notFound(err)
	}
	return accountID, nil
}
