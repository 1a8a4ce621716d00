package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/internal/domain/models"
)

const operator = "918888888888"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
		ok   bool
	}{
		{"VERIFY abc12345", Command{Verb: CommandVerify, ReportID: "abc12345"}, true},
		{"  REJECT   abc12345 ", Command{Verb: CommandReject, ReportID: "abc12345"}, true},
		{"verify abc12345", Command{}, false},
		{"VERIFY", Command{}, false},
		{"VERIFY a b", Command{}, false},
		{"RESOLVE abc12345", Command{}, false},
		{"", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	h := newHarness()
	seedCitizens(h)
	r := h.seedReport(models.ReportStatusPending, citizen, "MG Road, Sector 4", time.Now().UTC())

	require.NoError(t, h.commands.Execute(context.Background(), operator, "VERIFY "+r.ID.String()))

	stored, err := h.reports.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusAccepted, stored.Status)

	first := h.messenger.last(operator)
	assert.Contains(t, first, "marked Accepted")
	assert.Contains(t, first, "3 resident(s)")
	assert.Len(t, h.broadcasts.all(), 1)
	assert.Len(t, h.messenger.to(citizen), 1)

	require.NoError(t, h.commands.Execute(context.Background(), operator, "VERIFY "+r.ShortID()))

	second := h.messenger.last(operator)
	assert.Contains(t, second, "marked Accepted")
	assert.Contains(t, second, "no change")
	assert.Len(t, h.broadcasts.all(), 1, "no second broadcast")
	assert.Len(t, h.messenger.to(citizen), 1, "citizen not notified twice")
	assert.Len(t, h.events.changes, 1)
}

func TestRejectIsIdempotent(t *testing.T) {
	h := newHarness()
	r := h.seedReport(models.ReportStatusPendingAddress, citizen, models.PendingAddress, time.Now().UTC())

	for i := 0; i < 2; i++ {
		require.NoError(t, h.commands.Execute(context.Background(), operator, "REJECT "+r.ID.String()))
		assert.Contains(t, h.messenger.last(operator), "marked Rejected")
	}

	stored, _ := h.reports.GetByID(context.Background(), r.ID)
	assert.Equal(t, models.ReportStatusRejected, stored.Status)
	assert.Empty(t, h.broadcasts.all(), "rejections are not broadcast")
	assert.Len(t, h.messenger.to(citizen), 1)
}

func TestCommandReportNotFound(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.commands.Execute(context.Background(), operator, "VERIFY "+uuid.NewString()))
	assert.Contains(t, h.messenger.last(operator), "not found")

	require.NoError(t, h.commands.Execute(context.Background(), operator, "VERIFY nothex!!"))
	assert.Contains(t, h.messenger.last(operator), "not found")
}

func TestCommandInvalidTransition(t *testing.T) {
	h := newHarness()
	r := h.seedReport(models.ReportStatusResolved, citizen, "MG Road", time.Now().UTC())

	require.NoError(t, h.commands.Execute(context.Background(), operator, "VERIFY "+r.ID.String()))
	assert.Contains(t, h.messenger.last(operator), "cannot be changed")

	stored, _ := h.reports.GetByID(context.Background(), r.ID)
	assert.Equal(t, models.ReportStatusResolved, stored.Status)
}

func TestUnknownOperatorTextIsIgnored(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.commands.Execute(context.Background(), operator, "good morning team"))
	assert.Zero(t, h.messenger.count())
}

func TestVerifyNotifiesGroupOfOrigin(t *testing.T) {
	h := newHarness()
	r := h.seedReport(models.ReportStatusPending, citizen, "Sector 4", time.Now().UTC())
	group := "120363000@g.us"
	_, _, err := h.reports.Mutate(context.Background(), r.ID, func(rep *models.Report) (bool, error) {
		rep.GroupID = &group
		return true, nil
	})
	require.NoError(t, err)

	require.NoError(t, h.commands.Execute(context.Background(), operator, "VERIFY "+r.ID.String()))
	assert.Len(t, h.messenger.to(group), 1)
	assert.Contains(t, h.messenger.last(group), "Accepted")
}
