package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"civicpulse/internal/domain/models"
	"civicpulse/pkg/logger"
)

// maxWebhookBody caps gateway payloads; media arrives by link, not inline
const maxWebhookBody = 1 << 20

// WebhookHandler receives events from the messaging gateway
type WebhookHandler struct {
	router Dispatcher
	logger *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(router Dispatcher, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		router: router,
		logger: log.WithComponent("webhook"),
	}
}

// Receive handles POST /webhooks/messages. The gateway always gets the same
// acknowledgement so it never retries on our processing outcome.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	defer respondJSON(w, http.StatusOK, map[string]string{"status": "received"})

	var payload models.WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		h.logger.Warn().Err(err).Msg("ignoring malformed webhook payload")
		return
	}

	// Dispatch only dedups and queues; handling outlives the request.
	ctx := context.WithoutCancel(r.Context())
	for i := range payload.Messages {
		h.router.Dispatch(ctx, &payload.Messages[i])
	}
}
