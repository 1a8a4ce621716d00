package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apimiddleware "civicpulse/internal/api/middleware"
	"civicpulse/internal/domain/models"
	"civicpulse/internal/infrastructure/database/repository"
	"civicpulse/pkg/logger"
)

// ReportsHandler serves the moderation API for reports
type ReportsHandler struct {
	reports ReportReader
	status  StatusChanger
	logger  *logger.Logger
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(reports ReportReader, status StatusChanger, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{
		reports: reports,
		status:  status,
		logger:  log.WithComponent("reports-handler"),
	}
}

// Get handles GET /api/v1/reports/{id}
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.logger.WithReport(id.String()).Error().Err(err).Msg("failed to load report")
		respondError(w, http.StatusInternalServerError, "failed to fetch report")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// List handles GET /api/v1/reports?department=
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		respondError(w, http.StatusBadRequest, "department is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	key := models.SanitizeDepartmentKey(department)
	data, err := h.reports.ListByDepartment(r.Context(), key, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("department_key", key).Msg("failed to list department reports")
		respondError(w, http.StatusInternalServerError, "failed to fetch reports")
		return
	}
	if data == nil {
		data = []*models.Report{}
	}

	respondJSON(w, http.StatusOK, ListResponse{
		Data:   data,
		Count:  len(data),
		Limit:  limit,
		Offset: offset,
	})
}

// ChangeStatus handles PATCH /api/v1/reports/{id}/status
func (h *ReportsHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid report id")
		return
	}

	var req models.StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	next, err := models.ParseReportStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := "api"
	if key := apimiddleware.GetAPIKey(r.Context()); len(key) >= 4 {
		actor = "api:" + key[:4]
	}

	change, err := h.status.ChangeStatus(r.Context(), id, next, req.Message, actor)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, http.StatusNotFound, "report not found")
		return
	case errors.Is(err, models.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.WithReport(id.String()).Error().Err(err).Msg("failed to change report status")
		respondError(w, http.StatusInternalServerError, "failed to change report status")
		return
	}

	respondJSON(w, http.StatusOK, change)
}
