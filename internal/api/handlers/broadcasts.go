package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"civicpulse/internal/domain/models"
	"civicpulse/pkg/logger"
)

// BroadcastsHandler serves area alerts and their audit log
type BroadcastsHandler struct {
	engine  Broadcaster
	records BroadcastLister
	logger  *logger.Logger
}

// NewBroadcastsHandler creates a new broadcasts handler
func NewBroadcastsHandler(engine Broadcaster, records BroadcastLister, log *logger.Logger) *BroadcastsHandler {
	return &BroadcastsHandler{
		engine:  engine,
		records: records,
		logger:  log.WithComponent("broadcasts-handler"),
	}
}

// Create handles POST /api/v1/broadcasts. An empty area reaches every
// registered citizen.
func (h *BroadcastsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Sender == "" {
		req.Sender = "api"
	}

	result, err := h.engine.Broadcast(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("area", req.Area).Msg("broadcast failed")
		respondError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// List handles GET /api/v1/broadcasts
func (h *BroadcastsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	data, err := h.records.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list broadcasts")
		respondError(w, http.StatusInternalServerError, "failed to fetch broadcasts")
		return
	}
	if data == nil {
		data = []*models.BroadcastRecord{}
	}

	respondJSON(w, http.StatusOK, ListResponse{
		Data:   data,
		Count:  len(data),
		Limit:  limit,
		Offset: offset,
	})
}
