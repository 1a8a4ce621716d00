package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicpulse/internal/domain/models"
)

// BroadcastRepository is the append-only broadcast log
type BroadcastRepository struct {
	pool *pgxpool.Pool
}

// NewBroadcastRepository creates a new broadcast repository
func NewBroadcastRepository(pool *pgxpool.Pool) *BroadcastRepository {
	return &BroadcastRepository{pool: pool}
}

// Append records a finished broadcast
func (r *BroadcastRepository) Append(ctx context.Context, rec *models.BroadcastRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO broadcasts (id, area, type, message, department, sender, reach, failed, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Area, rec.Type, rec.Message, rec.Department, rec.Sender,
		rec.Reach, rec.Failed, rec.Status, timeToTimestamptz(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append broadcast: %w", err)
	}
	return nil
}

// List returns the most recent broadcasts first
func (r *BroadcastRepository) List(ctx context.Context, limit, offset int) ([]*models.BroadcastRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, area, type, message, department, sender, reach, failed, status, created_at
		FROM broadcasts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		clampLimit(limit), max(offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	defer rows.Close()

	var records []*models.BroadcastRecord
	for rows.Next() {
		var (
			rec       models.BroadcastRecord
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&rec.ID, &rec.Area, &rec.Type, &rec.Message, &rec.Department, &rec.Sender,
			&rec.Reach, &rec.Failed, &rec.Status, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan broadcast: %w", err)
		}
		rec.Timestamp = timestamptzToTime(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
