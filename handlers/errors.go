package handlers

import (
	"context"
	"errors"
	"net/http"

	"ombra/codegen"
	"ombra/db"
	"ombra/mission"
	"ombra/pricing"
	"ombra/report"
)

// writeServiceError maps service-layer errors onto HTTP statuses. Everything
// propagates to the caller; nothing is swallowed here.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mission.ErrNotFound), errors.Is(err, report.ErrNotFound),
		errors.Is(err, db.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, mission.ErrUnauthorized):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, mission.ErrInvalidTransition):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, mission.ErrInvalidInput),
		errors.Is(err, pricing.ErrInvalidInput),
		errors.Is(err, report.ErrNotDocumentMission):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, codegen.ErrExhaustedRetries):
		writeError(w, "Could not allocate a unique code, please try again", http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, "Storage operation timed out", http.StatusGatewayTimeout)
	default:
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
