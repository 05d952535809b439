package policy

import (
	"context"
	"testing"

	"ombra/db"
	"ombra/models"
	"ombra/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *db.MemStore) {
	t.Helper()
	store := db.NewMemStore()
	svc := NewService(store, zap.NewNop().Sugar())
	require.NoError(t, svc.SeedIfAbsent(context.Background()))
	return svc, store
}

func putProfile(t *testing.T, store *db.MemStore, p models.DriverProfile) {
	t.Helper()
	require.NoError(t, store.PutDriverProfile(context.Background(), &p))
}

func TestDefaultsCoverEveryLevel(t *testing.T) {
	defaults := Defaults()
	require.Len(t, defaults, 4)

	byLevel := make(map[models.SecurityLevel]models.SecurityLevelConfig)
	for _, cfg := range defaults {
		byLevel[cfg.Level] = cfg
	}

	assert.Equal(t, 1.0, byLevel[models.LevelStandard].PriceMultiplier)
	assert.Equal(t, 1.5, byLevel[models.LevelDiscreet].PriceMultiplier)
	assert.Equal(t, 2.0, byLevel[models.LevelConfidential].PriceMultiplier)
	assert.Equal(t, 3.0, byLevel[models.LevelCritical].PriceMultiplier)

	assert.True(t, byLevel[models.LevelStandard].AvailableToPublic)
	assert.False(t, byLevel[models.LevelCritical].AvailableToPublic)
	assert.True(t, byLevel[models.LevelCritical].RequiresPreApproval)
	assert.True(t, byLevel[models.LevelConfidential].DriverRequirements.RequiresCertification)
}

func TestSeedIfAbsentIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Mutate one row, reseed, and confirm the mutation survives.
	cfg, err := svc.Get(ctx, models.LevelStandard)
	require.NoError(t, err)
	cfg.PriceMultiplier = 1.1
	require.NoError(t, store.PutSecurityLevel(ctx, cfg))

	require.NoError(t, svc.SeedIfAbsent(ctx))

	got, err := svc.Get(ctx, models.LevelStandard)
	require.NoError(t, err)
	assert.Equal(t, 1.1, got.PriceMultiplier)
}

func TestAvailableExcludesNonPublicLevels(t *testing.T) {
	svc, _ := newTestService(t)

	levels, err := svc.Available(context.Background())
	require.NoError(t, err)

	for _, cfg := range levels {
		assert.True(t, cfg.AvailableToPublic)
		assert.NotEqual(t, models.LevelCritical, cfg.Level)
	}
	assert.Len(t, levels, 3)
}

func TestPutRejectsBadConfig(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Put(ctx, &models.SecurityLevelConfig{Level: "platinum", PriceMultiplier: 2.0})
	assert.Error(t, err)

	err = svc.Put(ctx, &models.SecurityLevelConfig{Level: models.LevelDiscreet, PriceMultiplier: 0.5})
	assert.Error(t, err)
}

func TestPutKeepsMultiplierAlignedWithPricing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A multiplier that disagrees with the fare engine never reaches the
	// table; fares are always computed from the engine's constants.
	err := svc.Put(ctx, &models.SecurityLevelConfig{Level: models.LevelDiscreet, PriceMultiplier: 1.75})
	assert.Error(t, err)

	stored, err := svc.Get(ctx, models.LevelDiscreet)
	require.NoError(t, err)
	assert.Equal(t, 1.5, stored.PriceMultiplier)
	engine, err := pricing.Multiplier(models.LevelDiscreet)
	require.NoError(t, err)
	assert.Equal(t, engine, stored.PriceMultiplier)

	// Non-pricing fields stay editable when the multiplier agrees.
	cfg := *stored
	cfg.DriverRequirements.MinRating = 4.6
	cfg.AvailableToPublic = false
	require.NoError(t, svc.Put(ctx, &cfg))

	got, err := svc.Get(ctx, models.LevelDiscreet)
	require.NoError(t, err)
	assert.Equal(t, 4.6, got.DriverRequirements.MinRating)
	assert.False(t, got.AvailableToPublic)
	assert.Equal(t, 1.5, got.PriceMultiplier)
}

func TestCanDriverHandleSecurityLevel(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	putProfile(t, store, models.DriverProfile{
		DriverID:           "veteran",
		Rating:             4.9,
		CompletedMissions:  300,
		MaxSecurityLevel:   models.LevelCritical,
		CertificationLevel: models.LevelCritical,
		BackgroundTier:     3,
	})
	putProfile(t, store, models.DriverProfile{
		DriverID:          "rookie",
		Rating:            4.2,
		CompletedMissions: 5,
		MaxSecurityLevel:  models.LevelStandard,
		BackgroundTier:    1,
	})
	putProfile(t, store, models.DriverProfile{
		// Meets every confidential requirement except certification.
		DriverID:          "uncertified",
		Rating:            4.8,
		CompletedMissions: 150,
		MaxSecurityLevel:  models.LevelConfidential,
		BackgroundTier:    2,
	})

	tests := []struct {
		driver string
		level  models.SecurityLevel
		want   bool
	}{
		{"veteran", models.LevelStandard, true},
		{"veteran", models.LevelCritical, true},
		{"rookie", models.LevelStandard, true},
		{"rookie", models.LevelDiscreet, false},
		{"uncertified", models.LevelDiscreet, true},
		{"uncertified", models.LevelConfidential, false},
	}
	for _, tt := range tests {
		got, err := svc.CanDriverHandleSecurityLevel(ctx, tt.driver, tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "driver %s level %s", tt.driver, tt.level)
	}
}

func TestCanDriverHandleMissingProfile(t *testing.T) {
	svc, _ := newTestService(t)

	eligible, err := svc.CanDriverHandleSecurityLevel(context.Background(), "ghost", models.LevelStandard)
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestCanDriverHandleUnknownLevel(t *testing.T) {
	svc, store := newTestService(t)
	putProfile(t, store, models.DriverProfile{
		DriverID:         "veteran",
		Rating:           5.0,
		MaxSecurityLevel: models.LevelCritical,
		BackgroundTier:   3,
	})

	_, err := svc.CanDriverHandleSecurityLevel(context.Background(), "veteran", "platinum")
	assert.Error(t, err)
}
