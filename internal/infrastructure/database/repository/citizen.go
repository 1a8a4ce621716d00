package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicpulse/internal/domain/models"
)

// CitizenRepository reads the registered subscriber directory
type CitizenRepository struct {
	pool *pgxpool.Pool
}

// NewCitizenRepository creates a new citizen repository
func NewCitizenRepository(pool *pgxpool.Pool) *CitizenRepository {
	return &CitizenRepository{pool: pool}
}

// List returns every registered citizen. Area matching happens in the
// broadcast engine.
func (r *CitizenRepository) List(ctx context.Context) ([]*models.Citizen, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_id, name, phone, city, address, created_at
		FROM citizens
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list citizens: %w", err)
	}
	defer rows.Close()

	var citizens []*models.Citizen
	for rows.Next() {
		var (
			c         models.Citizen
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&c.AccountID, &c.Name, &c.Phone, &c.City, &c.Address, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan citizen: %w", err)
		}
		c.CreatedAt = timestamptzToTime(createdAt)
		citizens = append(citizens, &c)
	}
	return citizens, rows.Err()
}

// FindByAccountID returns the registered citizen behind an account
func (r *CitizenRepository) FindByAccountID(ctx context.Context, accountID string) (*models.Citizen, error) {
	var (
		c         models.Citizen
		createdAt pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
		SELECT account_id, name, phone, city, address, created_at
		FROM citizens
		WHERE account_id = $1`, accountID,
	).Scan(&c.AccountID, &c.Name, &c.Phone, &c.City, &c.Address, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	c.CreatedAt = timestamptzToTime(createdAt)
	return &c, nil
}
