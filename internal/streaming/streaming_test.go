package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/internal/domain/models"
	"civicpulse/pkg/logger"
)

func testReport(status models.ReportStatus) *models.Report {
	return &models.Report{
		ID:         uuid.New(),
		Status:     status,
		Source:     models.ReportSourceChat,
		Department: "Municipal/Waste",
		Priority:   models.PriorityHigh,
		Location:   models.Location{Address: "MG Road"},
	}
}

func TestEventSubjects(t *testing.T) {
	created := NewReportEvent(EventTypeReportCreated, testReport(models.ReportStatusPendingAddress))
	assert.Equal(t, "reports.created", created.Subject())

	changed := NewStatusChangedEvent(&models.StatusChange{
		Report:   testReport(models.ReportStatusAccepted),
		Previous: models.ReportStatusPending,
		Changed:  true,
		Reach:    3,
	})
	assert.Equal(t, "reports.status.accepted", changed.Subject())
	assert.Equal(t, models.ReportStatusPending, changed.PreviousStatus)
	assert.Equal(t, 3, changed.Reach)

	bc := NewBroadcastEvent(&models.BroadcastRecord{ID: uuid.New(), Area: "Sector 4", Reach: 2})
	assert.Equal(t, "broadcasts.completed", bc.Subject())
}

func TestSubscriptionMatches(t *testing.T) {
	event := NewReportEvent(EventTypeReportCreated, testReport(models.ReportStatusPending))

	var nilSub *Subscription
	assert.True(t, nilSub.Matches(event))
	assert.True(t, (&Subscription{}).Matches(event))
	assert.True(t, (&Subscription{Departments: []string{"municipal/waste"}}).Matches(event))
	assert.False(t, (&Subscription{Departments: []string{"Police"}}).Matches(event))
	assert.False(t, (&Subscription{Types: []EventType{EventTypeBroadcastCompleted}}).Matches(event))
}

func TestEventBusLocalDelivery(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	ch, unsubscribe := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	pub := NewEventBusPublisher(bus)
	require.NoError(t, pub.ReportCreated(context.Background(), testReport(models.ReportStatusPendingAddress)))

	select {
	case event := <-ch:
		assert.Equal(t, EventTypeReportCreated, event.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestWebSocketHubFiltersByDepartment(t *testing.T) {
	bus := NewEventBus(nil, logger.NewNop())
	hub := NewWebSocketHub(bus, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?department=Police"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1 && bus.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	pub := NewEventBusPublisher(bus)
	other := testReport(models.ReportStatusPending)
	police := testReport(models.ReportStatusPending)
	police.Department = "Police"

	require.NoError(t, pub.ReportCreated(ctx, other))
	require.NoError(t, pub.ReportCreated(ctx, police))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, police.ID.String(), got.ReportID)
	assert.Equal(t, "Police", got.Department)
}
