// Package pricing computes mission fares. The calculator is a pure function
// so a quote can be reproduced exactly for re-pricing and audits.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"ombra/models"
)

// Fare constants. Distance and duration rates are product-wide; the minimum
// fare is the floor applied before the security multiplier.
const (
	RatePerKm     = 2.5
	RatePerMinute = 0.5
	MinimumFare   = 15.00
)

// ErrInvalidInput is returned for negative distance or duration, or an
// unknown security level.
var ErrInvalidInput = errors.New("invalid pricing input")

// Multipliers per security level. Must stay consistent with the seeded
// policy table.
var multipliers = map[models.SecurityLevel]float64{
	models.LevelStandard:     1.0,
	models.LevelDiscreet:     1.5,
	models.LevelConfidential: 2.0,
	models.LevelCritical:     3.0,
}

// Quote is the monetary breakdown of a mission price. Invariant:
// TotalPrice == BasePrice + SecurityPremium, all rounded to the cent.
type Quote struct {
	BasePrice       float64 `json:"base_price"`
	SecurityPremium float64 `json:"security_premium"`
	TotalPrice      float64 `json:"total_price"`
}

// Calculate prices a mission from route distance, estimated duration and the
// requested security level.
func Calculate(distanceKm, durationMinutes float64, level models.SecurityLevel) (Quote, error) {
	if distanceKm < 0 || durationMinutes < 0 {
		return Quote{}, fmt.Errorf("%w: distance and duration must be non-negative", ErrInvalidInput)
	}
	multiplier, ok := multipliers[level]
	if !ok {
		return Quote{}, fmt.Errorf("%w: unknown security level %q", ErrInvalidInput, level)
	}

	base := distanceKm*RatePerKm + durationMinutes*RatePerMinute
	if base < MinimumFare {
		base = MinimumFare
	}

	base = roundCents(base)
	premium := roundCents(base * (multiplier - 1))

	return Quote{
		BasePrice:       base,
		SecurityPremium: premium,
		TotalPrice:      roundCents(base + premium),
	}, nil
}

// Multiplier returns the price multiplier for a level, or an error for an
// unknown level.
func Multiplier(level models.SecurityLevel) (float64, error) {
	m, ok := multipliers[level]
	if !ok {
		return 0, fmt.Errorf("%w: unknown security level %q", ErrInvalidInput, level)
	}
	return m, nil
}

// roundCents rounds half-up at the cent.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// coordinates.
func Haversine(a, b models.Coordinates) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// EstimateDuration converts a route distance to an estimated trip duration
// in minutes, assuming 30 km/h average urban speed, never below 5 minutes.
func EstimateDuration(distanceKm float64) int {
	minutes := int(math.Ceil(distanceKm / 30.0 * 60.0))
	if minutes < 5 {
		minutes = 5
	}
	return minutes
}
