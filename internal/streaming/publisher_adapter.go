package streaming

import (
	"context"

	"civicpulse/internal/domain/models"
)

// EventBusPublisher implements services.EventPublisher using the EventBus
type EventBusPublisher struct {
	eventBus *EventBus
}

// NewEventBusPublisher creates a new publisher adapter
func NewEventBusPublisher(eventBus *EventBus) *EventBusPublisher {
	return &EventBusPublisher{eventBus: eventBus}
}

// ReportCreated publishes reports.created
func (p *EventBusPublisher) ReportCreated(ctx context.Context, report *models.Report) error {
	return p.eventBus.Publish(ctx, NewReportEvent(EventTypeReportCreated, report))
}

// ReportStatusChanged publishes reports.status.<status>
func (p *EventBusPublisher) ReportStatusChanged(ctx context.Context, change *models.StatusChange) error {
	return p.eventBus.Publish(ctx, NewStatusChangedEvent(change))
}

// BroadcastCompleted publishes broadcasts.completed
func (p *EventBusPublisher) BroadcastCompleted(ctx context.Context, rec *models.BroadcastRecord) error {
	return p.eventBus.Publish(ctx, NewBroadcastEvent(rec))
}
