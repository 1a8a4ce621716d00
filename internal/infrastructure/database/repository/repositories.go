package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"civicpulse/pkg/logger"
)

// Repositories groups the Postgres-backed stores
type Repositories struct {
	Reports    *ReportRepository
	Identities *IdentityRepository
	Citizens   *CitizenRepository
	Broadcasts *BroadcastRepository
}

// NewRepositories creates every repository on the same pool
func NewRepositories(pool *pgxpool.Pool, log *logger.Logger) *Repositories {
	return &Repositories{
		Reports:    NewReportRepository(pool, log),
		Identities: NewIdentityRepository(pool),
		Citizens:   NewCitizenRepository(pool),
		Broadcasts: NewBroadcastRepository(pool),
	}
}
