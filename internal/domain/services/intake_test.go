package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/domain/services/ai"
)

const citizen = "919999999999"

func TestHandleMediaNegativeVerdictCreatesNothing(t *testing.T) {
	h := newHarness()
	h.oracle.verdict = &ai.Verdict{IsReal: false, FakeReason: "it is a screenshot"}

	err := h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, ""), citizen)
	require.NoError(t, err)

	assert.Empty(t, h.reports.all())
	assert.Contains(t, h.messenger.last(citizen), "it is a screenshot")
	assert.Empty(t, h.events.created)
}

func TestHandleMediaCreatesPendingAddressReport(t *testing.T) {
	h := newHarness()
	h.identities.links["+919999999999"] = "acct-42"

	err := h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, "huge pothole"), citizen)
	require.NoError(t, err)

	reports := h.reports.all()
	require.Len(t, reports, 1)
	r := reports[0]

	assert.Equal(t, models.ReportStatusPendingAddress, r.Status)
	assert.Equal(t, models.ReportSourceChat, r.Source)
	assert.Equal(t, "Municipal/Waste", r.Department)
	assert.Equal(t, "Municipal_Waste", r.DepartmentKey)
	assert.Equal(t, models.PriorityHigh, r.Priority)
	assert.Equal(t, models.PendingAddress, r.Location.Address)
	assert.Equal(t, citizen, r.SenderPhone)
	require.NotNil(t, r.AccountID)
	assert.Equal(t, "acct-42", *r.AccountID)
	assert.Nil(t, r.GroupID)
	assert.Equal(t, models.MediaKindImage, r.Media.Kind)
	assert.True(t, r.AIVerdict.Verified)
	assert.Equal(t, "Pothole", r.AIVerdict.Category)
	assert.Equal(t, []string{"huge pothole"}, h.oracle.hints)

	_, indexed := h.reports.indexed("Municipal_Waste", r.ID)
	assert.True(t, indexed, "department copy written with the primary record")

	replies := h.messenger.to(citizen)
	require.Len(t, replies, 2)
	assert.Equal(t, msgProcessing, replies[0])
	assert.Contains(t, replies[1], r.ShortID())
	assert.Contains(t, replies[1], "address")
	assert.Len(t, h.events.created, 1)
}

func TestHandleMediaOracleUnavailableGoesToManualReview(t *testing.T) {
	h := newHarness()
	h.oracle.err = fmt.Errorf("%w: timeout", ErrOracleUnavailable)

	err := h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, "garbage pile"), citizen)
	require.NoError(t, err)

	reports := h.reports.all()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.True(t, r.AIVerdict.Unavailable)
	assert.False(t, r.AIVerdict.Verified)
	assert.Equal(t, models.ReportStatusPendingAddress, r.Status)
	assert.Equal(t, models.PriorityMedium, r.Priority)
	assert.Equal(t, "Municipal/Waste", r.Department, "caption used as category hint")
	assert.Contains(t, h.messenger.last(citizen), "could not verify")
}

func TestHandleMediaVideoFromGroup(t *testing.T) {
	h := newHarness()
	msg := &models.InboundMessage{
		ID:     "g1",
		From:   "120363000@g.us",
		Author: "919999999999@c.us",
		Type:   models.MessageTypeVideo,
		Video:  &models.MediaBody{Link: "https://gateway.test/media/v1"},
	}

	require.NoError(t, h.intake.HandleMedia(context.Background(), msg, citizen))

	reports := h.reports.all()
	require.Len(t, reports, 1)
	assert.Equal(t, models.MediaKindVideo, reports[0].Media.Kind)
	require.NotNil(t, reports[0].GroupID)
	assert.Equal(t, "120363000@g.us", *reports[0].GroupID)
	assert.NotEmpty(t, h.messenger.to("120363000@g.us"), "replies go to the chat of origin")
}

func TestHandleMediaFetchFailure(t *testing.T) {
	h := newHarness()
	h.fetcher.err = errors.New("404")

	err := h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, ""), citizen)
	assert.Error(t, err)
	assert.Empty(t, h.reports.all())
	assert.Equal(t, msgMediaFetch, h.messenger.last(citizen))
}

func TestHandleMediaStoreFailure(t *testing.T) {
	h := newHarness()
	h.reports.createErr = errors.New("tx aborted")

	err := h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, ""), citizen)
	assert.Error(t, err)
	assert.Equal(t, msgSaveFailed, h.messenger.last(citizen))
}

func TestHandleMediaEscalatesCriticalDepartments(t *testing.T) {
	h := newHarness()
	h.oracle.verdict = &ai.Verdict{IsReal: true, Issue: "Fire", Severity: "High"}

	require.NoError(t, h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, ""), citizen))
	h.intake.Wait()

	escalations := h.messenger.to("917777777777")
	require.Len(t, escalations, 1)
	assert.Contains(t, escalations[0], "URGENT")
	assert.Contains(t, escalations[0], "Fire & Safety")
}

func TestHandleMediaEscalatesCriticalPriority(t *testing.T) {
	h := newHarness()
	h.oracle.verdict = &ai.Verdict{IsReal: true, Issue: "Pothole", Severity: "critical"}

	require.NoError(t, h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, ""), citizen))
	h.intake.Wait()
	assert.Len(t, h.messenger.to("917777777777"), 1)
}

func TestHandleMediaDoesNotEscalateRoutineReports(t *testing.T) {
	h := newHarness()

	require.NoError(t, h.intake.HandleMedia(context.Background(), imageMessage("m1", citizen, ""), citizen))
	h.intake.Wait()
	assert.Empty(t, h.messenger.to("917777777777"))
}

func TestCompleteAddress(t *testing.T) {
	h := newHarness()
	r := h.seedReport(models.ReportStatusPendingAddress, citizen, models.PendingAddress, time.Now().UTC())

	done, err := h.intake.CompleteAddress(context.Background(), textMessage("t1", citizen, "  MG Road  "), citizen, r)
	require.NoError(t, err)
	assert.True(t, done)

	stored, err := h.reports.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, stored.Status)
	assert.Equal(t, "MG Road", stored.Location.Address)

	indexed, ok := h.reports.indexed(stored.DepartmentKey, r.ID)
	require.True(t, ok)
	assert.Equal(t, models.ReportStatusPending, indexed.Status)
	assert.Contains(t, h.messenger.last(citizen), "MG Road")

	// A second text no longer completes anything.
	done, err = h.intake.CompleteAddress(context.Background(), textMessage("t2", citizen, "Other Road"), citizen, r)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestDepartmentFor(t *testing.T) {
	h := newHarness()
	assert.Equal(t, "Municipal/Waste", h.intake.DepartmentFor("Pothole"))
	assert.Equal(t, "Municipal/Waste", h.intake.DepartmentFor("deep pothole on road"))
	assert.Equal(t, "Electricity", h.intake.DepartmentFor("Broken streetlight"))
	assert.Equal(t, "Lighting", h.intake.DepartmentFor("light"))
	assert.Equal(t, "Municipal/General", h.intake.DepartmentFor("graffiti"))
	assert.Equal(t, "Municipal/General", h.intake.DepartmentFor(""))
}
