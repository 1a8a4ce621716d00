package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStatusTransition(t *testing.T) {
	tests := []struct {
		from, to ReportStatus
		changed  bool
		wantErr  bool
	}{
		{ReportStatusPendingAddress, ReportStatusPending, true, false},
		{ReportStatusPendingAddress, ReportStatusAccepted, true, false},
		{ReportStatusPending, ReportStatusAccepted, true, false},
		{ReportStatusPending, ReportStatusRejected, true, false},
		{ReportStatusAccepted, ReportStatusResolved, true, false},
		{ReportStatusRejected, ReportStatusAccepted, true, false},
		{ReportStatusAccepted, ReportStatusAccepted, false, false},
		{ReportStatusRejected, ReportStatusRejected, false, false},
		{ReportStatusAccepted, ReportStatusPending, false, true},
		{ReportStatusResolved, ReportStatusAccepted, false, true},
		{ReportStatusPending, ReportStatusPendingAddress, false, true},
		{ReportStatusPending, ReportStatus("Bogus"), false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			changed, err := tt.from.Transition(tt.to)
			assert.Equal(t, tt.changed, changed)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseReportStatus(t *testing.T) {
	s, err := ParseReportStatus("accepted")
	require.NoError(t, err)
	assert.Equal(t, ReportStatusAccepted, s)

	_, err = ParseReportStatus("done")
	assert.Error(t, err)
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("High"))
	assert.Equal(t, PriorityCritical, ParsePriority(" critical "))
	assert.Equal(t, PriorityLow, ParsePriority("minor"))
	assert.Equal(t, PriorityMedium, ParsePriority(""))
}

func TestSanitizeDepartmentKey(t *testing.T) {
	assert.Equal(t, "Municipal_Waste", SanitizeDepartmentKey("Municipal/Waste"))
	assert.Equal(t, "Fire_&_Safety", SanitizeDepartmentKey(" Fire & Safety "))
	assert.Equal(t, "a_b_c_d_e_f", SanitizeDepartmentKey("a.b#c$d[e]f"))
}

func TestAwaitingAddressWindow(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	r := &Report{Status: ReportStatusPendingAddress, CreatedAt: created}

	assert.True(t, r.AwaitingAddress(created.Add(14*time.Minute+59*time.Second), 15*time.Minute))
	assert.False(t, r.AwaitingAddress(created.Add(15*time.Minute+time.Second), 15*time.Minute))

	r.Status = ReportStatusPending
	assert.False(t, r.AwaitingAddress(created.Add(time.Minute), 15*time.Minute))
}

func TestInferredArea(t *testing.T) {
	r := &Report{Location: Location{Address: "12 MG Road, Sector 4"}}
	assert.Equal(t, "Sector 4", r.InferredArea())

	r.Location.Address = "MG Road"
	assert.Equal(t, "MG Road", r.InferredArea())

	r.Location.Address = PendingAddress
	assert.Equal(t, "", r.InferredArea())

	r.Location.Address = "Sector 9, "
	assert.Equal(t, "Sector 9", r.InferredArea())
}

func TestInboundMessageSender(t *testing.T) {
	direct := InboundMessage{From: "919999999999", Type: MessageTypeText, Text: &TextBody{Body: " hi "}}
	assert.False(t, direct.IsGroup())
	assert.Equal(t, "919999999999", direct.SenderAddress())
	assert.Nil(t, direct.GroupID())
	assert.Equal(t, "hi", direct.Body())

	group := InboundMessage{From: "120363@g.us", Author: "918888888888", Type: MessageTypeImage,
		Image: &MediaBody{Link: "https://gw/media/1"}}
	assert.True(t, group.IsGroup())
	assert.Equal(t, "918888888888", group.SenderAddress())
	require.NotNil(t, group.GroupID())
	assert.Equal(t, "120363@g.us", *group.GroupID())

	media, kind, ok := group.MediaPayload()
	require.True(t, ok)
	assert.Equal(t, MediaKindImage, kind)
	assert.Equal(t, "https://gw/media/1", media.Link)

	_, _, ok = direct.MediaPayload()
	assert.False(t, ok)
}
