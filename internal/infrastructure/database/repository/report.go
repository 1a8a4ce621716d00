package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/infrastructure/database"
	"civicpulse/pkg/logger"
)

const reportColumns = `
	id, status, source, department, department_key, priority, description,
	sender_phone, account_id, group_id,
	address, lat, lng, media_url, media_kind, ai_verdict,
	created_at, updated_at`

// ReportRepository persists reports. Every write covers both the primary row and
// its department-scoped copy inside one transaction, so callers see a single
// logical record.
type ReportRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(pool *pgxpool.Pool, log *logger.Logger) *ReportRepository {
	return &ReportRepository{
		pool:   pool,
		logger: log.WithComponent("report-repository"),
	}
}

// Create inserts a new report and its department index entry
func (r *ReportRepository) Create(ctx context.Context, rep *models.Report) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = now
	}
	rep.UpdatedAt = rep.CreatedAt
	rep.DepartmentKey = models.SanitizeDepartmentKey(rep.Department)

	return database.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		query := `
			INSERT INTO reports (` + reportColumns + `
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
			)`

		_, err := tx.Exec(ctx, query,
			rep.ID, rep.Status, rep.Source, rep.Department, rep.DepartmentKey, rep.Priority, rep.Description,
			textOrNull(rep.SenderPhone), textPtrOrNull(rep.AccountID), textPtrOrNull(rep.GroupID),
			rep.Location.Address, rep.Location.Lat, rep.Location.Lng, rep.Media.URL, rep.Media.Kind, rep.AIVerdict,
			timeToTimestamptz(rep.CreatedAt), timeToTimestamptz(rep.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}

		return writeDepartmentIndex(ctx, tx, rep)
	})
}

// GetByID retrieves a report by ID
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	return scanReport(r.pool.QueryRow(ctx, query, id))
}

// FindByShortID resolves the 8-character prefix shown in chat replies
func (r *ReportRepository) FindByShortID(ctx context.Context, prefix string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id::text LIKE $1 || '%' ORDER BY created_at DESC LIMIT 2`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to find report by short id: %w", err)
	}
	defer rows.Close()

	var found []*models.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

// LatestBySenderPhone returns the most recent report sent from phone
func (r *ReportRepository) LatestBySenderPhone(ctx context.Context, phone string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports
		WHERE sender_phone = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return scanReport(r.pool.QueryRow(ctx, query, phone))
}

// LatestByAccountID returns the most recent report attributed to an account
func (r *ReportRepository) LatestByAccountID(ctx context.Context, accountID string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + `
		FROM reports
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return scanReport(r.pool.QueryRow(ctx, query, accountID))
}

// ListByDepartment lists the department-scoped copies for a sanitized key
func (r *ReportRepository) ListByDepartment(ctx context.Context, departmentKey string, limit, offset int) ([]*models.Report, error) {
	query := `
		SELECT snapshot
		FROM department_reports
		WHERE department_key = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, departmentKey, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list department reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		var rep models.Report
		if err := rows.Scan(&rep); err != nil {
			return nil, fmt.Errorf("failed to scan department report: %w", err)
		}
		reports = append(reports, &rep)
	}
	return reports, rows.Err()
}

// Mutate locks the report, lets fn modify it and, when fn reports a change,
// writes the primary row and the department copy in the same transaction.
func (r *ReportRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(rep *models.Report) (bool, error)) (*models.Report, bool, error) {
	var (
		result  *models.Report
		changed bool
	)

	err := database.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 FOR UPDATE`
		rep, err := scanReport(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}

		changed, err = fn(rep)
		if err != nil {
			return err
		}
		result = rep
		if !changed {
			return nil
		}

		rep.UpdatedAt = time.Now().UTC()
		rep.DepartmentKey = models.SanitizeDepartmentKey(rep.Department)

		_, err = tx.Exec(ctx, `
			UPDATE reports SET
				status = $2, department = $3, department_key = $4, priority = $5,
				account_id = $6, address = $7, lat = $8, lng = $9, ai_verdict = $10,
				updated_at = $11
			WHERE id = $1`,
			rep.ID, rep.Status, rep.Department, rep.DepartmentKey, rep.Priority,
			textPtrOrNull(rep.AccountID), rep.Location.Address, rep.Location.Lat, rep.Location.Lng, rep.AIVerdict,
			timeToTimestamptz(rep.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to update report: %w", err)
		}

		return writeDepartmentIndex(ctx, tx, rep)
	})
	if err != nil {
		return nil, false, err
	}

	return result, changed, nil
}

// FindIndexDrift returns ids of reports whose department copy is missing, stale,
// or filed under the wrong department key.
func (r *ReportRepository) FindIndexDrift(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT r.id
		FROM reports r
		LEFT JOIN department_reports d
			ON d.report_id = r.id AND d.department_key = r.department_key
		WHERE d.report_id IS NULL OR d.status <> r.status OR d.address <> r.address
		UNION
		SELECT d.report_id
		FROM department_reports d
		JOIN reports r ON r.id = d.report_id
		WHERE d.department_key <> r.department_key
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to find index drift: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RepairIndex rewrites the department copy of a report from its primary row
func (r *ReportRepository) RepairIndex(ctx context.Context, id uuid.UUID) error {
	return database.WithTx(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1 FOR UPDATE`
		rep, err := scanReport(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}
		return writeDepartmentIndex(ctx, tx, rep)
	})
}

// writeDepartmentIndex upserts the department copy and removes copies filed
// under any other key.
func writeDepartmentIndex(ctx context.Context, tx pgx.Tx, rep *models.Report) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM department_reports WHERE report_id = $1 AND department_key <> $2`,
		rep.ID, rep.DepartmentKey,
	); err != nil {
		return fmt.Errorf("failed to clear stale department index: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO department_reports (department_key, report_id, status, address, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (department_key, report_id) DO UPDATE SET
			status = EXCLUDED.status,
			address = EXCLUDED.address,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`,
		rep.DepartmentKey, rep.ID, rep.Status, rep.Location.Address, rep, timeToTimestamptz(rep.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write department index: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("department index write affected %d rows", tag.RowsAffected())
	}
	return nil
}

func scanReport(row pgx.Row) (*models.Report, error) {
	var (
		rep         models.Report
		senderPhone pgtype.Text
		accountID   pgtype.Text
		groupID     pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)

	err := row.Scan(
		&rep.ID, &rep.Status, &rep.Source, &rep.Department, &rep.DepartmentKey, &rep.Priority, &rep.Description,
		&senderPhone, &accountID, &groupID,
		&rep.Location.Address, &rep.Location.Lat, &rep.Location.Lng, &rep.Media.URL, &rep.Media.Kind, &rep.AIVerdict,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	rep.SenderPhone = nullTextToString(senderPhone)
	rep.AccountID = nullTextToPtr(accountID)
	rep.GroupID = nullTextToPtr(groupID)
	rep.CreatedAt = timestamptzToTime(createdAt)
	rep.UpdatedAt = timestamptzToTime(updatedAt)

	return &rep, nil
}
