package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/internal/domain/models"
)

func TestPendingAddressWindow(t *testing.T) {
	h := newHarness()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	report := h.seedReport(models.ReportStatusPendingAddress, "919999999999", models.PendingAddress, created)

	c := NewConversationResolver(h.reports, 15*time.Minute)

	c.now = func() time.Time { return created.Add(14*time.Minute + 59*time.Second) }
	got, err := c.PendingAddressReport(context.Background(), "919999999999", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, report.ID, got.ID)

	c.now = func() time.Time { return created.Add(15*time.Minute + time.Second) }
	got, err = c.PendingAddressReport(context.Background(), "919999999999", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	c.now = func() time.Time { return created.Add(15 * time.Minute) }
	got, err = c.PendingAddressReport(context.Background(), "919999999999", "")
	require.NoError(t, err)
	assert.Nil(t, got, "the window is exclusive")
}

func TestPendingAddressIgnoresOtherStatuses(t *testing.T) {
	h := newHarness()
	now := time.Now().UTC()
	h.seedReport(models.ReportStatusPending, "919999999999", "MG Road", now)

	c := NewConversationResolver(h.reports, 15*time.Minute)
	got, err := c.PendingAddressReport(context.Background(), "919999999999", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestReportFallsBackToAccount(t *testing.T) {
	h := newHarness()
	acct := "acct-7"
	r := h.seedReport(models.ReportStatusPending, "", "Sector 9", time.Now().UTC())
	_, _, err := h.reports.Mutate(context.Background(), r.ID, func(rep *models.Report) (bool, error) {
		rep.AccountID = &acct
		return true, nil
	})
	require.NoError(t, err)

	c := NewConversationResolver(h.reports, 15*time.Minute)

	got, err := c.LatestReport(context.Background(), "910000000000", acct)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.ID, got.ID)

	got, err = c.LatestReport(context.Background(), "910000000000", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestReportPicksMostRecent(t *testing.T) {
	h := newHarness()
	base := time.Now().UTC()
	h.seedReport(models.ReportStatusRejected, "919999999999", "Old", base.Add(-time.Hour))
	newest := h.seedReport(models.ReportStatusPendingAddress, "919999999999", models.PendingAddress, base)

	c := NewConversationResolver(h.reports, 15*time.Minute)
	got, err := c.PendingAddressReport(context.Background(), "919999999999", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
}
