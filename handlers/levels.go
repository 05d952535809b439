package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ombra/middleware"
	"ombra/models"
	"ombra/policy"

	"go.uber.org/zap"
)

// LevelHandler serves the security-level policy table and driver
// eligibility checks.
type LevelHandler struct {
	policy       *policy.Service
	storeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewLevelHandler(policySvc *policy.Service, storeTimeout time.Duration, logger *zap.SugaredLogger) *LevelHandler {
	return &LevelHandler{policy: policySvc, storeTimeout: storeTimeout, logger: logger}
}

func (h *LevelHandler) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.storeTimeout)
}

// Available lists the levels bookable by the public. Admins get the full
// table.
func (h *LevelHandler) Available(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	var (
		levels []models.SecurityLevelConfig
		err    error
	)
	if user.Role == models.RoleAdmin {
		levels, err = h.policy.List(ctx)
	} else {
		levels, err = h.policy.Available(ctx)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": levels})
}

// Update upserts one security level config. Admin only; route enforcement
// happens in middleware.
func (h *LevelHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cfg models.SecurityLevelConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	if err := h.policy.Put(ctx, &cfg); err != nil {
		h.logger.Errorw("security level update failed", "level", cfg.Level, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"level": cfg.Level, "updated": true})
}

// DriverEligibility answers whether a driver can handle a security level.
func (h *LevelHandler) DriverEligibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	driverID := query.Get("driver_id")
	level := models.SecurityLevel(query.Get("level"))
	if driverID == "" || level == "" {
		writeError(w, "driver_id and level query parameters are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	eligible, err := h.policy.CanDriverHandleSecurityLevel(ctx, driverID, level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"driver_id": driverID,
		"level":     level,
		"eligible":  eligible,
	})
}
