package streaming

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"civicpulse/internal/domain/models"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	EventTypeReportCreated       EventType = "report_created"
	EventTypeReportStatusChanged EventType = "report_status_changed"
	EventTypeBroadcastCompleted  EventType = "broadcast_completed"
)

// Event is a report or broadcast lifecycle event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Report details
	ReportID       string              `json:"report_id,omitempty"`
	Status         models.ReportStatus `json:"status,omitempty"`
	PreviousStatus models.ReportStatus `json:"previous_status,omitempty"`
	Source         models.ReportSource `json:"source,omitempty"`
	Department     string              `json:"department,omitempty"`
	Priority       models.Priority     `json:"priority,omitempty"`
	Address        string              `json:"address,omitempty"`
	Unverified     bool                `json:"unverified,omitempty"`

	// Broadcast details
	BroadcastID string `json:"broadcast_id,omitempty"`
	Area        string `json:"area,omitempty"`
	Reach       int    `json:"reach,omitempty"`
	Failed      int    `json:"failed,omitempty"`
}

// NewReportEvent creates an event describing the current state of a report
func NewReportEvent(eventType EventType, report *models.Report) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now(),
		ReportID:   report.ID.String(),
		Status:     report.Status,
		Source:     report.Source,
		Department: report.Department,
		Priority:   report.Priority,
		Address:    report.Location.Address,
		Unverified: report.AIVerdict.Unavailable,
	}
}

// NewStatusChangedEvent creates an event for an applied status change
func NewStatusChangedEvent(change *models.StatusChange) *Event {
	event := NewReportEvent(EventTypeReportStatusChanged, change.Report)
	event.PreviousStatus = change.Previous
	event.Reach = change.Reach
	return event
}

// NewBroadcastEvent creates an event for a finished broadcast
func NewBroadcastEvent(rec *models.BroadcastRecord) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Type:        EventTypeBroadcastCompleted,
		Timestamp:   time.Now(),
		BroadcastID: rec.ID.String(),
		Department:  rec.Department,
		Area:        rec.Area,
		Reach:       rec.Reach,
		Failed:      rec.Failed,
	}
}

// Subject returns the NATS subject an event is published on
func (e *Event) Subject() string {
	switch e.Type {
	case EventTypeReportCreated:
		return "reports.created"
	case EventTypeReportStatusChanged:
		return fmt.Sprintf("reports.status.%s", strings.ToLower(string(e.Status)))
	case EventTypeBroadcastCompleted:
		return "broadcasts.completed"
	default:
		return "reports.other"
	}
}

// Subscription filters the events a client receives. Empty fields match everything.
type Subscription struct {
	Departments []string    `json:"departments,omitempty"`
	Types       []EventType `json:"types,omitempty"`
}

// Matches reports whether the event passes the subscription filters
func (s *Subscription) Matches(e *Event) bool {
	if s == nil {
		return true
	}
	if len(s.Types) > 0 && !slices.Contains(s.Types, e.Type) {
		return false
	}
	if len(s.Departments) > 0 {
		return slices.ContainsFunc(s.Departments, func(d string) bool {
			return strings.EqualFold(d, e.Department)
		})
	}
	return true
}
