package handlers

import (
	"encoding/json"
	"net/http"

	"ombra/models"
	"ombra/pricing"

	"go.uber.org/zap"
)

// PricingHandler serves fare quotes.
type PricingHandler struct {
	currency string
	logger   *zap.SugaredLogger
}

func NewPricingHandler(currency string, logger *zap.SugaredLogger) *PricingHandler {
	return &PricingHandler{currency: currency, logger: logger}
}

type quoteRequest struct {
	Pickup          models.Coordinates   `json:"pickup"`
	Dropoff         models.Coordinates   `json:"dropoff"`
	DurationMinutes *float64             `json:"duration_minutes,omitempty"`
	Level           models.SecurityLevel `json:"security_level"`
}

type quoteResponse struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
	BasePrice       float64 `json:"base_price"`
	SecurityPremium float64 `json:"security_premium"`
	TotalPrice      float64 `json:"total_price"`
	Currency        string  `json:"currency"`
}

// Quote prices a route before booking. Duration defaults to the server
// estimate when the client does not supply one.
func (h *PricingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	distanceKm := pricing.Haversine(req.Pickup, req.Dropoff)
	duration := float64(pricing.EstimateDuration(distanceKm))
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}

	quote, err := pricing.Calculate(distanceKm, duration, req.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		DistanceKm:      distanceKm,
		DurationMinutes: duration,
		BasePrice:       quote.BasePrice,
		SecurityPremium: quote.SecurityPremium,
		TotalPrice:      quote.TotalPrice,
		Currency:        h.currency,
	})
}
