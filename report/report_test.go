package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"ombra/audit"
	"ombra/codegen"
	"ombra/db"
	"ombra/mission"
	"ombra/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store    *db.MemStore
	missions *mission.Service
	reports  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := db.NewMemStore()
	logger := zap.NewNop().Sugar()
	codes := codegen.NewGenerator(store, logger)
	auditSvc := audit.NewService(store, logger)
	return &fixture{
		store:    store,
		missions: mission.NewService(store, codes, "EUR", logger),
		reports:  NewService(store, auditSvc, logger),
	}
}

// runDocumentMission books a confidential document mission and drives it
// through the full lifecycle with both scans.
func (f *fixture) runDocumentMission(t *testing.T) *models.Mission {
	t.Helper()
	ctx := context.Background()

	m, err := f.missions.Create(ctx, mission.CreateParams{
		ClientID:   "client-1",
		ClientCode: "OT-K7M2P",
		Type:       models.MissionTypeDocument,
		Level:      models.LevelConfidential,
		Pickup: models.RoutePoint{
			Address:     "4 Place Vendome, Paris",
			Coordinates: models.Coordinates{Lat: 48.8675, Lng: 2.3294},
		},
		Dropoff: models.RoutePoint{
			Address:     "18 Quai de Bercy, Paris",
			Coordinates: models.Coordinates{Lat: 48.8336, Lng: 2.3847},
		},
		ScheduledFor:      time.Now().Add(time.Hour),
		EstimatedDuration: 30,
		BasePrice:         52.50,
		SecurityPremium:   52.50,
		DocumentDetails:   &models.DocumentDetails{DocumentType: "legal_contract", SealedPackage: true},
	})
	require.NoError(t, err)

	require.NoError(t, f.missions.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))
	for _, status := range []models.MissionStatus{
		models.StatusDriverEnRoute,
		models.StatusDriverArrived,
	} {
		require.NoError(t, f.missions.UpdateStatus(ctx, m.MissionID, status, "driver-1", models.ActorDriver, nil))
	}
	require.NoError(t, f.missions.RecordDocumentScan(ctx, m.MissionID, "pickup", "scan-pickup-001", "driver-1"))
	require.NoError(t, f.missions.UpdateStatus(ctx, m.MissionID, models.StatusInProgress, "driver-1", models.ActorDriver, nil))
	require.NoError(t, f.missions.RecordDocumentScan(ctx, m.MissionID, "delivery", "scan-delivery-001", "driver-1"))
	require.NoError(t, f.missions.UpdateStatus(ctx, m.MissionID, models.StatusCompleted, "driver-1", models.ActorDriver, &mission.StatusUpdate{
		ConfirmationCode: m.ConfirmationCode,
	}))

	got, err := f.missions.Get(ctx, m.MissionID)
	require.NoError(t, err)
	return got
}

func TestGenerateChainOfCustodyReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.runDocumentMission(t)

	reportID, err := f.reports.Generate(ctx, m.MissionID)
	require.NoError(t, err)
	require.NotEmpty(t, reportID)

	r, err := f.reports.Get(ctx, reportID)
	require.NoError(t, err)

	assert.Equal(t, m.MissionID, r.MissionID)
	assert.Equal(t, m.MissionCode, r.MissionCode)
	assert.Equal(t, models.LevelConfidential, r.Level)
	assert.Equal(t, 52.50, m.BasePrice)
	assert.Equal(t, 52.50, m.SecurityPremium)
	assert.Equal(t, 105.00, m.TotalPrice)
	assert.Equal(t, "scan-pickup-001", r.ScanAtPickup)
	assert.Equal(t, "scan-delivery-001", r.ScanAtDelivery)
	assert.Equal(t, "4 Place Vendome, Paris", r.PickupAddress)
	assert.Equal(t, "18 Quai de Bercy, Paris", r.DropoffAddress)
	assert.True(t, r.LegallyValid)
	assert.NotEmpty(t, r.ReportChecksum)
	require.NotNil(t, r.ConfirmedAt)

	// created, assigned, driver_departed, driver_arrived, document_scanned,
	// started, document_scanned, completed.
	require.Len(t, r.Chain, 8)
	want := []models.EventType{
		models.EventCreated,
		models.EventAssigned,
		models.EventDriverDeparted,
		models.EventDriverArrived,
		models.EventDocumentScanned,
		models.EventStarted,
		models.EventDocumentScanned,
		models.EventCompleted,
	}
	for i, ev := range want {
		assert.Equal(t, ev, r.Chain[i].Event, "chain entry %d", i)
		assert.True(t, r.Chain[i].Verified, "chain entry %d not verified", i)
	}
}

func TestGenerateRejectsPersonMission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.missions.Create(ctx, mission.CreateParams{
		ClientID:   "client-1",
		ClientCode: "OT-K7M2P",
		Type:       models.MissionTypePerson,
		Level:      models.LevelStandard,
		Pickup: models.RoutePoint{
			Address:     "A",
			Coordinates: models.Coordinates{Lat: 48.85, Lng: 2.35},
		},
		Dropoff: models.RoutePoint{
			Address:     "B",
			Coordinates: models.Coordinates{Lat: 48.86, Lng: 2.36},
		},
		EstimatedDuration: 10,
		BasePrice:         15.00,
	})
	require.NoError(t, err)

	_, err = f.reports.Generate(ctx, m.MissionID)
	assert.ErrorIs(t, err, ErrNotDocumentMission)
}

func TestGenerateMissingMission(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Generate(context.Background(), "no-such-mission")
	assert.ErrorIs(t, err, mission.ErrNotFound)
}

func TestGetMissingReport(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.Get(context.Background(), "no-such-report")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenderHTML(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.runDocumentMission(t)

	reportID, err := f.reports.Generate(ctx, m.MissionID)
	require.NoError(t, err)
	r, err := f.reports.Get(ctx, reportID)
	require.NoError(t, err)

	html, err := RenderHTML(r)
	require.NoError(t, err)

	page := string(html)
	assert.Contains(t, page, m.MissionCode)
	assert.Contains(t, page, r.ReportChecksum)
	assert.Contains(t, page, "scan-pickup-001")
	assert.Contains(t, page, "scan-delivery-001")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(page), "<!DOCTYPE html>"))
}
