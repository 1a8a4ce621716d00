package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/domain/services/ai"
)

// ErrOracleUnavailable is returned by an Oracle that could not produce a verdict
var ErrOracleUnavailable = ai.ErrOracleUnavailable

// ReportStore is the single logical report store. Implementations keep the
// primary record and its department copy consistent.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	FindByShortID(ctx context.Context, prefix string) (*models.Report, error)
	LatestBySenderPhone(ctx context.Context, phone string) (*models.Report, error)
	LatestByAccountID(ctx context.Context, accountID string) (*models.Report, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(report *models.Report) (bool, error)) (*models.Report, bool, error)
}

// IdentityStore looks up phone to account links
type IdentityStore interface {
	FindAccountByPhone(ctx context.Context, phone string) (string, error)
}

// CitizenStore reads the registered citizen directory
type CitizenStore interface {
	List(ctx context.Context) ([]*models.Citizen, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.Citizen, error)
}

// BroadcastStore appends broadcast audit records
type BroadcastStore interface {
	Append(ctx context.Context, rec *models.BroadcastRecord) error
}

// Messenger delivers a text message to a chat address
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

// MediaFetcher downloads inbound media
type MediaFetcher interface {
	FetchMedia(ctx context.Context, link string) ([]byte, string, error)
}

// Oracle classifies media as a genuine civic issue or not
type Oracle interface {
	Verify(ctx context.Context, media []byte, mimeType, hint string) (*ai.Verdict, error)
}

// EventPublisher emits report and broadcast lifecycle events
type EventPublisher interface {
	ReportCreated(ctx context.Context, report *models.Report) error
	ReportStatusChanged(ctx context.Context, change *models.StatusChange) error
	BroadcastCompleted(ctx context.Context, rec *models.BroadcastRecord) error
}

// Deduper remembers inbound message ids
type Deduper interface {
	MarkMessageSeen(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
}

// Locker provides expiring, token-owned distributed locks
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	WaitLock(ctx context.Context, key string, ttl, poll time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

type noopPublisher struct{}

func (noopPublisher) ReportCreated(context.Context, *models.Report) error             { return nil }
func (noopPublisher) ReportStatusChanged(context.Context, *models.StatusChange) error { return nil }
func (noopPublisher) BroadcastCompleted(context.Context, *models.BroadcastRecord) error {
	return nil
}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
