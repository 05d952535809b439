package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ombra/middleware"
	"ombra/mission"
	"ombra/models"
	"ombra/policy"
	"ombra/pricing"

	"go.uber.org/zap"
)

// MissionHandler exposes the mission lifecycle over HTTP.
type MissionHandler struct {
	missions     *mission.Service
	policy       *policy.Service
	storeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewMissionHandler(missions *mission.Service, policySvc *policy.Service, storeTimeout time.Duration, logger *zap.SugaredLogger) *MissionHandler {
	return &MissionHandler{
		missions:     missions,
		policy:       policySvc,
		storeTimeout: storeTimeout,
		logger:       logger,
	}
}

// opCtx bounds a store operation so a slow backend surfaces as a timeout
// instead of hanging the request.
func (h *MissionHandler) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

type createMissionRequest struct {
	Type               models.MissionType        `json:"type"`
	Level              models.SecurityLevel      `json:"security_level"`
	Pickup             models.RoutePoint         `json:"pickup"`
	Dropoff            models.RoutePoint         `json:"dropoff"`
	ScheduledFor       time.Time                 `json:"scheduled_for"`
	ConfirmationMethod models.ConfirmationMethod `json:"confirmation_method"`
	DocumentDetails    *models.DocumentDetails   `json:"document_details,omitempty"`
}

// Create books a new mission for the authenticated client. Distance,
// duration and price are computed server-side from the submitted route.
func (h *MissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req createMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	cfg, err := h.policy.Get(ctx, req.Level)
	if err != nil {
		writeError(w, "Unknown security level", http.StatusBadRequest)
		return
	}
	if cfg.RequiresPreApproval && user.Role != models.RoleAdmin {
		writeError(w, "Security level requires pre-approval", http.StatusForbidden)
		return
	}

	distanceKm := pricing.Haversine(req.Pickup.Coordinates, req.Dropoff.Coordinates)
	durationMin := pricing.EstimateDuration(distanceKm)
	quote, err := pricing.Calculate(distanceKm, float64(durationMin), req.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	m, err := h.missions.Create(ctx, mission.CreateParams{
		ClientID:           user.UserID,
		ClientCode:         user.AnonymousCode,
		Type:               req.Type,
		Level:              req.Level,
		Pickup:             req.Pickup,
		Dropoff:            req.Dropoff,
		ScheduledFor:       req.ScheduledFor,
		EstimatedDuration:  durationMin,
		BasePrice:          quote.BasePrice,
		SecurityPremium:    quote.SecurityPremium,
		ConfirmationMethod: req.ConfirmationMethod,
		DocumentDetails:    req.DocumentDetails,
	})
	if err != nil {
		h.logger.Errorw("mission creation failed", "client", user.AnonymousCode, "error", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

type assignRequest struct {
	MissionID string `json:"mission_id"`
	DriverID  string `json:"driver_id"`
}

// Assign binds a driver to a pending mission after checking the driver is
// eligible for the mission's security level. Dispatch (admin) only.
func (h *MissionHandler) Assign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MissionID == "" || req.DriverID == "" {
		writeError(w, "mission_id and driver_id are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	m, err := h.missions.Get(ctx, req.MissionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	eligible, err := h.policy.CanDriverHandleSecurityLevel(ctx, req.DriverID, m.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !eligible {
		writeError(w, "Driver is not eligible for this security level", http.StatusForbidden)
		return
	}

	profile, err := h.policy.DriverProfile(ctx, req.DriverID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.missions.AssignDriver(ctx, req.MissionID, profile.DriverID, profile.DriverCode); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

type statusRequest struct {
	MissionID        string               `json:"mission_id"`
	Status           models.MissionStatus `json:"status"`
	Location         *models.Coordinates  `json:"location,omitempty"`
	Details          map[string]string    `json:"details,omitempty"`
	Anomaly          string               `json:"anomaly,omitempty"`
	Timestamp        *time.Time           `json:"timestamp,omitempty"`
	ConfirmationCode string               `json:"confirmation_code,omitempty"`
}

// UpdateStatus advances a mission through the state machine. Drivers may
// advance their own missions; clients may cancel their own; admins may do
// either.
func (h *MissionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	role, err := h.authorizeStatusChange(ctx, user, req.MissionID, req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	err = h.missions.UpdateStatus(ctx, req.MissionID, req.Status, user.UserID, role, &mission.StatusUpdate{
		Location:         req.Location,
		Details:          req.Details,
		Anomaly:          req.Anomaly,
		Timestamp:        req.Timestamp,
		ConfirmationCode: req.ConfirmationCode,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

// authorizeStatusChange verifies the caller may move this mission and
// returns the actor role to attribute on the audit event.
func (h *MissionHandler) authorizeStatusChange(ctx context.Context, user *models.User, missionID string, newStatus models.MissionStatus) (models.ActorRole, error) {
	switch user.Role {
	case models.RoleAdmin:
		return models.ActorAdmin, nil
	case models.RoleDriver:
		if _, err := h.missions.DriverMissionView(ctx, missionID, user.UserID); err != nil {
			return "", err
		}
		return models.ActorDriver, nil
	case models.RoleClient:
		if newStatus != models.StatusCancelled {
			return "", mission.ErrUnauthorized
		}
		m, err := h.missions.Get(ctx, missionID)
		if err != nil {
			return "", err
		}
		if m.ClientID != user.UserID {
			return "", mission.ErrUnauthorized
		}
		return models.ActorClient, nil
	}
	return "", mission.ErrUnauthorized
}

// Get returns one mission. Clients see their own, drivers their assigned,
// admins any.
func (h *MissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}
	missionID := r.URL.Query().Get("id")
	if missionID == "" {
		writeError(w, "id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	m, err := h.missions.Get(ctx, missionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user.Role == models.RoleClient && m.ClientID != user.UserID {
		writeError(w, "Not your mission", http.StatusForbidden)
		return
	}
	if user.Role == models.RoleDriver && m.DriverID != user.UserID {
		writeError(w, "Not your mission", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ClientMissions lists the authenticated client's missions, newest first.
func (h *MissionHandler) ClientMissions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	missions, err := h.missions.ClientMissions(ctx, user.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"missions": missions,
		"count":    len(missions),
	})
}

// DriverMissions lists the authenticated driver's missions, newest first.
func (h *MissionHandler) DriverMissions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	missions, err := h.missions.DriverMissions(ctx, user.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"missions": missions,
		"count":    len(missions),
	})
}

// DriverMissionView returns a mission for the driver-side screens; only the
// assigned driver may read it.
func (h *MissionHandler) DriverMissionView(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}
	missionID := r.URL.Query().Get("id")
	if missionID == "" {
		writeError(w, "id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	m, err := h.missions.DriverMissionView(ctx, missionID, user.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type scanRequest struct {
	MissionID string `json:"mission_id"`
	Phase     string `json:"phase"`
	ScanRef   string `json:"scan_ref"`
}

// RecordScan stores a document scan reference taken at pickup or delivery.
func (h *MissionHandler) RecordScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	if _, err := h.missions.DriverMissionView(ctx, req.MissionID, user.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.missions.RecordDocumentScan(ctx, req.MissionID, req.Phase, req.ScanRef, user.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// WatchMine long-polls the next change to the caller's mission list, for
// live list screens. Clients watch their booked missions, drivers their
// assigned ones. Responds 204 when nothing changes within the poll window.
func (h *MissionHandler) WatchMine(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var (
		updates <-chan []models.Mission
		err     error
	)
	switch user.Role {
	case models.RoleDriver:
		updates, err = h.missions.WatchDriverMissions(ctx, user.UserID)
	default:
		updates, err = h.missions.WatchClientMissions(ctx, user.UserID)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The stream opens with the current result set; skip it so the poll
	// answers with the next change only.
	select {
	case _, open := <-updates:
		if !open {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
		return
	}

	select {
	case missions, open := <-updates:
		if !open {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"missions": missions,
			"count":    len(missions),
		})
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
	}
}

// Watch long-polls the next change to a mission, for live status screens.
// Responds 204 when nothing changes within the poll window.
func (h *MissionHandler) Watch(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}
	missionID := r.URL.Query().Get("id")
	if missionID == "" {
		writeError(w, "id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	// Access check before opening the stream.
	m, err := h.missions.Get(ctx, missionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user.Role == models.RoleClient && m.ClientID != user.UserID ||
		user.Role == models.RoleDriver && m.DriverID != user.UserID {
		writeError(w, "Not your mission", http.StatusForbidden)
		return
	}

	updates, err := h.missions.Watch(ctx, missionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The stream opens with the current snapshot; skip it so the poll
	// answers with the next change only.
	select {
	case _, open := <-updates:
		if !open {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
		return
	}

	select {
	case update, open := <-updates:
		if !open {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, update)
	case <-ctx.Done():
		w.WriteHeader(http.StatusNoContent)
	}
}
