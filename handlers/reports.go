package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ombra/middleware"
	"ombra/models"
	"ombra/report"

	"go.uber.org/zap"
)

// ReportHandler serves document chain-of-custody reports.
type ReportHandler struct {
	reports      *report.Service
	storeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewReportHandler(reports *report.Service, storeTimeout time.Duration, logger *zap.SugaredLogger) *ReportHandler {
	return &ReportHandler{reports: reports, storeTimeout: storeTimeout, logger: logger}
}

func (h *ReportHandler) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

type generateReportRequest struct {
	MissionID string `json:"mission_id"`
}

// Generate builds and persists the chain-of-custody report for a document
// mission.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MissionID == "" {
		writeError(w, "mission_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	reportID, err := h.reports.Generate(ctx, req.MissionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"report_id": reportID})
}

// Get returns a persisted report as JSON.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.fetch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Download serves the report as a standalone HTML artifact.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.fetch(w, r)
	if !ok {
		return
	}

	html, err := report.RenderHTML(rep)
	if err != nil {
		h.logger.Errorw("report render failed", "report_id", rep.ReportID, "error", err)
		writeError(w, "Failed to render report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "custody-"+rep.MissionCode+".html"))
	w.WriteHeader(http.StatusOK)
	w.Write(html)
}

func (h *ReportHandler) fetch(w http.ResponseWriter, r *http.Request) (*models.DocumentReport, bool) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	if _, ok := middleware.GetUserFromContext(r.Context()); !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return nil, false
	}
	reportID := r.URL.Query().Get("id")
	if reportID == "" {
		writeError(w, "id query parameter is required", http.StatusBadRequest)
		return nil, false
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	rep, err := h.reports.Get(ctx, reportID)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return rep, true
}
