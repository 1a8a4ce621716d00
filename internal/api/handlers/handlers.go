package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"civicpulse/internal/domain/models"
	"civicpulse/internal/streaming"
	"civicpulse/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health     *HealthHandler
	Webhook    *WebhookHandler
	Reports    *ReportsHandler
	Broadcasts *BroadcastsHandler
	Streaming  *StreamingHandler
}

// Pinger is a dependency the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dispatcher accepts inbound chat events
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *models.InboundMessage)
}

// ReportReader reads reports for the moderation API
type ReportReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListByDepartment(ctx context.Context, departmentKey string, limit, offset int) ([]*models.Report, error)
}

// StatusChanger applies a moderation decision and its notifications
type StatusChanger interface {
	ChangeStatus(ctx context.Context, id uuid.UUID, next models.ReportStatus, note, actor string) (*models.StatusChange, error)
}

// Broadcaster sends an area alert
type Broadcaster interface {
	Broadcast(ctx context.Context, req models.BroadcastRequest) (*models.BroadcastResult, error)
}

// BroadcastLister reads the broadcast audit log
type BroadcastLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.BroadcastRecord, error)
}

// Dependencies holds dependencies for handlers
type Dependencies struct {
	Postgres    Pinger
	Redis       Pinger
	Router      Dispatcher
	Reports     ReportReader
	Status      StatusChanger
	Broadcaster Broadcaster
	Broadcasts  BroadcastLister
	WSHub       *streaming.WebSocketHub
	EventBus    *streaming.EventBus
	Version     string
	Logger      *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:     NewHealthHandler(deps.Postgres, deps.Redis, deps.Version, deps.Logger),
		Webhook:    NewWebhookHandler(deps.Router, deps.Logger),
		Reports:    NewReportsHandler(deps.Reports, deps.Status, deps.Logger),
		Broadcasts: NewBroadcastsHandler(deps.Broadcaster, deps.Broadcasts, deps.Logger),
		Streaming:  NewStreamingHandler(deps.WSHub, deps.EventBus, deps.Logger),
	}
}

// ListResponse represents a paginated list response
type ListResponse struct {
	Data   any `json:"data"`
	Count  int `json:"count"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
