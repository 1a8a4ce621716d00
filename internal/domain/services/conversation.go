package services

import (
	"context"
	"errors"
	"time"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/infrastructure/database/repository"
)

// ConversationResolver derives chat state from persisted reports. There is no
// session object: the sender's latest report is the conversation.
type ConversationResolver struct {
	reports ReportStore
	window  time.Duration
	now     func() time.Time
}

// NewConversationResolver creates a resolver with the address reply window
func NewConversationResolver(reports ReportStore, window time.Duration) *ConversationResolver {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &ConversationResolver{
		reports: reports,
		window:  window,
		now:     time.Now,
	}
}

// LatestReport returns the sender's most recent report by phone, falling back
// to the linked account. It returns nil when the sender has none.
func (c *ConversationResolver) LatestReport(ctx context.Context, phone, accountID string) (*models.Report, error) {
	if phone != "" {
		report, err := c.reports.LatestBySenderPhone(ctx, phone)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	if accountID != "" {
		report, err := c.reports.LatestByAccountID(ctx, accountID)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

// PendingAddressReport returns the report a text from this sender completes,
// or nil when the text is unrelated.
func (c *ConversationResolver) PendingAddressReport(ctx context.Context, phone, accountID string) (*models.Report, error) {
	report, err := c.LatestReport(ctx, phone, accountID)
	if err != nil || report == nil {
		return nil, err
	}
	if !report.AwaitingAddress(c.now(), c.window) {
		return nil, nil
	}
	return report, nil
}
