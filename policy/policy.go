// Package policy holds the static security-level table and the driver
// eligibility rules derived from it.
package policy

import (
	"context"
	"errors"
	"fmt"

	"ombra/db"
	"ombra/models"
	"ombra/pricing"

	"go.uber.org/zap"
)

// Store is the persistence surface for policy data.
type Store interface {
	PutSecurityLevel(ctx context.Context, cfg *models.SecurityLevelConfig) error
	GetSecurityLevel(ctx context.Context, level models.SecurityLevel) (*models.SecurityLevelConfig, error)
	ListSecurityLevels(ctx context.Context) ([]models.SecurityLevelConfig, error)
	GetDriverProfile(ctx context.Context, driverID string) (*models.DriverProfile, error)
}

// Service answers security-level and driver-eligibility queries.
type Service struct {
	store  Store
	logger *zap.SugaredLogger
}

// NewService creates a policy service.
func NewService(store Store, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, logger: logger}
}

// Defaults is the seed table, one row per security level.
func Defaults() []models.SecurityLevelConfig {
	return []models.SecurityLevelConfig{
		{
			Level:           models.LevelStandard,
			PriceMultiplier: 1.0,
			DriverRequirements: models.DriverRequirements{
				MinRating:            4.0,
				BackgroundCheckTier:  1,
				MinCompletedMissions: 0,
			},
			VehicleRequirements: []string{"sedan"},
			Features:            models.LevelFeatures{},
			AvailableToPublic:   true,
		},
		{
			Level:           models.LevelDiscreet,
			PriceMultiplier: 1.5,
			DriverRequirements: models.DriverRequirements{
				MinRating:            4.5,
				BackgroundCheckTier:  1,
				MinCompletedMissions: 25,
			},
			VehicleRequirements: []string{"sedan", "tinted_windows"},
			Features: models.LevelFeatures{
				EnhancedLogging: true,
			},
			AvailableToPublic: true,
		},
		{
			Level:           models.LevelConfidential,
			PriceMultiplier: 2.0,
			DriverRequirements: models.DriverRequirements{
				MinRating:             4.7,
				RequiresCertification: true,
				BackgroundCheckTier:   2,
				MinCompletedMissions:  100,
			},
			VehicleRequirements: []string{"sedan", "tinted_windows", "secure_compartment"},
			Features: models.LevelFeatures{
				EnhancedLogging:    true,
				DedicatedSupport:   true,
				PriorityAssignment: true,
				LegalReport:        true,
			},
			AvailableToPublic: true,
		},
		{
			Level:           models.LevelCritical,
			PriceMultiplier: 3.0,
			DriverRequirements: models.DriverRequirements{
				MinRating:             4.9,
				RequiresCertification: true,
				BackgroundCheckTier:   3,
				MinCompletedMissions:  250,
			},
			VehicleRequirements: []string{"armored", "secure_compartment"},
			Features: models.LevelFeatures{
				EnhancedLogging:    true,
				DedicatedSupport:   true,
				PriorityAssignment: true,
				AnomalyMonitoring:  true,
				LegalReport:        true,
			},
			AvailableToPublic:   false,
			RequiresPreApproval: true,
		},
	}
}

// SeedIfAbsent writes the default table for every level that has no row yet.
// Existing rows are left untouched; the table is read-only in normal
// operation.
func (s *Service) SeedIfAbsent(ctx context.Context) error {
	for _, cfg := range Defaults() {
		_, err := s.store.GetSecurityLevel(ctx, cfg.Level)
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("check security level %s: %w", cfg.Level, err)
		}
		c := cfg
		if err := s.store.PutSecurityLevel(ctx, &c); err != nil {
			return fmt.Errorf("seed security level %s: %w", cfg.Level, err)
		}
		s.logger.Infow("seeded security level", "level", cfg.Level)
	}
	return nil
}

// Put replaces the config for one level. Admin use only. The price
// multiplier is a fixed product constant enforced by the pricing engine;
// the stored table must agree with it, so a multiplier change is rejected
// rather than silently ignored at fare time.
func (s *Service) Put(ctx context.Context, cfg *models.SecurityLevelConfig) error {
	if models.SecurityLevelRank(cfg.Level) < 0 {
		return fmt.Errorf("unknown security level %q", cfg.Level)
	}
	engine, err := pricing.Multiplier(cfg.Level)
	if err != nil {
		return err
	}
	if cfg.PriceMultiplier != engine {
		return fmt.Errorf("price multiplier for %s is fixed at %v, got %v", cfg.Level, engine, cfg.PriceMultiplier)
	}
	if err := s.store.PutSecurityLevel(ctx, cfg); err != nil {
		return err
	}
	s.logger.Infow("security level updated", "level", cfg.Level, "multiplier", cfg.PriceMultiplier)
	return nil
}

// Get returns the config for one level.
func (s *Service) Get(ctx context.Context, level models.SecurityLevel) (*models.SecurityLevelConfig, error) {
	return s.store.GetSecurityLevel(ctx, level)
}

// List returns every security level config.
func (s *Service) List(ctx context.Context) ([]models.SecurityLevelConfig, error) {
	return s.store.ListSecurityLevels(ctx)
}

// Available returns the levels bookable without pre-approval.
func (s *Service) Available(ctx context.Context) ([]models.SecurityLevelConfig, error) {
	all, err := s.store.ListSecurityLevels(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]models.SecurityLevelConfig, 0, len(all))
	for _, cfg := range all {
		if cfg.AvailableToPublic {
			available = append(available, cfg)
		}
	}
	return available, nil
}

// DriverProfile returns one driver's eligibility profile.
func (s *Service) DriverProfile(ctx context.Context, driverID string) (*models.DriverProfile, error) {
	return s.store.GetDriverProfile(ctx, driverID)
}

// CanDriverHandleSecurityLevel reports whether a driver may take a mission
// at the given level. A missing profile means ineligible, not an error.
func (s *Service) CanDriverHandleSecurityLevel(ctx context.Context, driverID string, level models.SecurityLevel) (bool, error) {
	profile, err := s.store.GetDriverProfile(ctx, driverID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get driver profile: %w", err)
	}

	cfg, err := s.store.GetSecurityLevel(ctx, level)
	if err != nil {
		return false, fmt.Errorf("get security level %s: %w", level, err)
	}

	levelRank := models.SecurityLevelRank(level)
	if levelRank < 0 {
		return false, fmt.Errorf("unknown security level %q", level)
	}
	if models.SecurityLevelRank(profile.MaxSecurityLevel) < levelRank {
		return false, nil
	}
	req := cfg.DriverRequirements
	if profile.Rating < req.MinRating {
		return false, nil
	}
	if profile.CompletedMissions < req.MinCompletedMissions {
		return false, nil
	}
	if profile.BackgroundTier < req.BackgroundCheckTier {
		return false, nil
	}
	if req.RequiresCertification && models.SecurityLevelRank(profile.CertificationLevel) < levelRank {
		return false, nil
	}
	return true, nil
}
