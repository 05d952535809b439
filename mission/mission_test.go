package mission

import (
	"context"
	"strings"
	"testing"
	"time"

	"ombra/codegen"
	"ombra/db"
	"ombra/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *db.MemStore) {
	t.Helper()
	store := db.NewMemStore()
	logger := zap.NewNop().Sugar()
	codes := codegen.NewGenerator(store, logger)
	return NewService(store, codes, "EUR", logger), store
}

func validParams() CreateParams {
	return CreateParams{
		ClientID:   "client-1",
		ClientCode: "OT-K7M2P",
		Type:       models.MissionTypePerson,
		Level:      models.LevelDiscreet,
		Pickup: models.RoutePoint{
			Address:     "12 Rue de Rivoli, Paris",
			Coordinates: models.Coordinates{Lat: 48.8559, Lng: 2.3570},
		},
		Dropoff: models.RoutePoint{
			Address:     "1 Av. des Champs-Elysees, Paris",
			Coordinates: models.Coordinates{Lat: 48.8698, Lng: 2.3079},
		},
		ScheduledFor:      time.Now().Add(2 * time.Hour),
		EstimatedDuration: 25,
		BasePrice:         35.00,
		SecurityPremium:   17.50,
	}
}

func createMission(t *testing.T, svc *Service, p CreateParams) *models.Mission {
	t.Helper()
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	return m
}

func TestCreateMission(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())

	assert.NotEmpty(t, m.MissionID)
	assert.Regexp(t, `^M-[A-Z2-9]{5}$`, m.MissionCode)
	assert.Equal(t, models.StatusPending, m.Status)
	assert.Equal(t, 52.50, m.TotalPrice)
	assert.Equal(t, "EUR", m.Currency)
	assert.Equal(t, models.ConfirmQR, m.ConfirmationMethod)
	assert.Len(t, m.ConfirmationCode, 6)
	assert.False(t, m.RequestedAt.IsZero())

	// The created event is written with the mission.
	logs, err := store.MissionLogs(ctx, m.MissionID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.EventCreated, logs[0].EventType)
	assert.Equal(t, models.ActorClient, logs[0].UserRole)
	assert.Equal(t, m.MissionCode, logs[0].Details["mission_code"])
}

func TestCreateMissionPINMethod(t *testing.T) {
	svc, _ := newTestService(t)

	p := validParams()
	p.ConfirmationMethod = models.ConfirmPIN
	m := createMission(t, svc, p)

	assert.Equal(t, models.ConfirmPIN, m.ConfirmationMethod)
	assert.Regexp(t, `^[1-9][0-9]{5}$`, m.ConfirmationCode)
}

func TestCreateMissionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mutations := []func(*CreateParams){
		func(p *CreateParams) { p.ClientID = "" },
		func(p *CreateParams) { p.Type = "freight" },
		func(p *CreateParams) { p.Level = "platinum" },
		func(p *CreateParams) { p.EstimatedDuration = 0 },
		func(p *CreateParams) { p.BasePrice = -1 },
		func(p *CreateParams) { p.Pickup.Coordinates.Lat = 91 },
		func(p *CreateParams) { p.Dropoff.Address = "" },
		func(p *CreateParams) { p.Type = models.MissionTypeDocument; p.DocumentDetails = nil },
	}
	for i, mutate := range mutations {
		p := validParams()
		mutate(&p)
		_, err := svc.Create(ctx, p)
		assert.ErrorIs(t, err, ErrInvalidInput, "mutation %d", i)
	}
}

func TestAssignDriver(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.Equal(t, "driver-1", got.DriverID)
	assert.Equal(t, "DR-X9Q3W", got.DriverCode)

	logs, err := store.MissionLogs(ctx, m.MissionID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.EventAssigned, logs[1].EventType)

	// Reassignment of a non-pending mission is rejected.
	err = svc.AssignDriver(ctx, m.MissionID, "driver-2", "DR-AAAAA")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err = svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", got.DriverID)
}

func TestAssignDriverMissingMission(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AssignDriver(context.Background(), "no-such-mission", "driver-1", "DR-X9Q3W")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFullLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))

	steps := []models.MissionStatus{
		models.StatusDriverEnRoute,
		models.StatusDriverArrived,
		models.StatusInProgress,
	}
	for _, status := range steps {
		require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, status, "driver-1", models.ActorDriver, nil))
	}
	require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, models.StatusCompleted, "driver-1", models.ActorDriver, &StatusUpdate{
		ConfirmationCode: m.ConfirmationCode,
	}))

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	// Every lifecycle timestamp is stamped, in order.
	require.NotNil(t, got.DriverDepartedAt)
	require.NotNil(t, got.DriverArrivedAt)
	require.NotNil(t, got.MissionStartedAt)
	require.NotNil(t, got.MissionCompletedAt)
	require.NotNil(t, got.ConfirmedAt)
	assert.False(t, got.DriverArrivedAt.Before(*got.DriverDepartedAt))
	assert.False(t, got.MissionStartedAt.Before(*got.DriverArrivedAt))
	assert.False(t, got.MissionCompletedAt.Before(*got.MissionStartedAt))

	// created, assigned, driver_departed, driver_arrived, started, completed.
	logs, err := store.MissionLogs(ctx, m.MissionID)
	require.NoError(t, err)
	require.Len(t, logs, 6)
	want := []models.EventType{
		models.EventCreated,
		models.EventAssigned,
		models.EventDriverDeparted,
		models.EventDriverArrived,
		models.EventStarted,
		models.EventCompleted,
	}
	for i, ev := range want {
		assert.Equal(t, ev, logs[i].EventType, "log %d", i)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())

	// pending cannot jump straight to in_progress or completed.
	err := svc.UpdateStatus(ctx, m.MissionID, models.StatusInProgress, "driver-1", models.ActorDriver, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = svc.UpdateStatus(ctx, m.MissionID, models.StatusCompleted, "driver-1", models.ActorDriver, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestTerminalStatesAreLocked(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, models.StatusCancelled, "client-1", models.ActorClient, nil))

	logsBefore, err := store.MissionLogs(ctx, m.MissionID)
	require.NoError(t, err)

	for _, status := range []models.MissionStatus{
		models.StatusAssigned,
		models.StatusInProgress,
		models.StatusCancelled,
		models.StatusFailed,
	} {
		err := svc.UpdateStatus(ctx, m.MissionID, status, "admin-1", models.ActorAdmin, nil)
		assert.ErrorIs(t, err, ErrInvalidTransition, "status %s", status)
	}

	// A rejected transition leaves the log untouched.
	logsAfter, err := store.MissionLogs(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, len(logsBefore), len(logsAfter))
}

func TestSameStatusReassertKeepsTimestamp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))
	require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, models.StatusDriverEnRoute, "driver-1", models.ActorDriver, nil))

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	first := *got.DriverDepartedAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, models.StatusDriverEnRoute, "driver-1", models.ActorDriver, nil))

	got, err = svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, first, *got.DriverDepartedAt)
}

func TestExplicitTimestampOverride(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))

	reported := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, models.StatusDriverEnRoute, "driver-1", models.ActorDriver, &StatusUpdate{
		Timestamp: &reported,
	}))

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	require.NotNil(t, got.DriverDepartedAt)
	assert.True(t, got.DriverDepartedAt.Equal(reported))
}

func TestCompletionConfirmationCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))
	for _, status := range []models.MissionStatus{
		models.StatusDriverEnRoute, models.StatusDriverArrived, models.StatusInProgress,
	} {
		require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, status, "driver-1", models.ActorDriver, nil))
	}

	// A wrong code blocks completion.
	err := svc.UpdateStatus(ctx, m.MissionID, models.StatusCompleted, "driver-1", models.ActorDriver, &StatusUpdate{
		ConfirmationCode: "WRONG9",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Nil(t, got.ConfirmedAt)

	// The right code, case-insensitively, completes and stamps ConfirmedAt.
	require.NoError(t, svc.UpdateStatus(ctx, m.MissionID, models.StatusCompleted, "driver-1", models.ActorDriver, &StatusUpdate{
		ConfirmationCode: strings.ToLower(m.ConfirmationCode),
	}))
	got, err = svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.ConfirmedAt)
}

func TestRecordDocumentScan(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p := validParams()
	p.Type = models.MissionTypeDocument
	p.DocumentDetails = &models.DocumentDetails{DocumentType: "legal_contract", SealedPackage: true}
	m := createMission(t, svc, p)

	require.NoError(t, svc.RecordDocumentScan(ctx, m.MissionID, "pickup", "scan-001", "driver-1"))
	require.NoError(t, svc.RecordDocumentScan(ctx, m.MissionID, "delivery", "scan-002", "driver-1"))

	got, err := svc.Get(ctx, m.MissionID)
	require.NoError(t, err)
	require.NotNil(t, got.DocumentDetails)
	assert.Equal(t, "scan-001", got.DocumentDetails.ScanAtPickup)
	assert.Equal(t, "scan-002", got.DocumentDetails.ScanAtDelivery)

	logs, err := store.MissionLogs(ctx, m.MissionID)
	require.NoError(t, err)
	var scans int
	for _, l := range logs {
		if l.EventType == models.EventDocumentScanned {
			scans++
		}
	}
	assert.Equal(t, 2, scans)

	// Scans are rejected on person missions and for unknown phases.
	person := createMission(t, svc, validParams())
	assert.ErrorIs(t, svc.RecordDocumentScan(ctx, person.MissionID, "pickup", "scan-003", "driver-1"), ErrInvalidInput)
	assert.ErrorIs(t, svc.RecordDocumentScan(ctx, m.MissionID, "midway", "scan-004", "driver-1"), ErrInvalidInput)
}

func TestMissionListings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := createMission(t, svc, validParams())
	p := validParams()
	p.ClientID = "client-2"
	p.ClientCode = "OT-ZZZZZ"
	other := createMission(t, svc, p)
	second := createMission(t, svc, validParams())

	require.NoError(t, svc.AssignDriver(ctx, other.MissionID, "driver-1", "DR-X9Q3W"))

	mine, err := svc.ClientMissions(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	// Newest first.
	assert.Equal(t, second.MissionID, mine[0].MissionID)
	assert.Equal(t, first.MissionID, mine[1].MissionID)

	driving, err := svc.DriverMissions(ctx, "driver-1")
	require.NoError(t, err)
	require.Len(t, driving, 1)
	assert.Equal(t, other.MissionID, driving[0].MissionID)
}

func TestDriverMissionView(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m := createMission(t, svc, validParams())
	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))

	got, err := svc.DriverMissionView(ctx, m.MissionID, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, m.MissionID, got.MissionID)

	_, err = svc.DriverMissionView(ctx, m.MissionID, "driver-2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.DriverMissionView(ctx, "no-such-mission", "driver-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatchDeliversUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m := createMission(t, svc, validParams())

	updates, err := svc.Watch(ctx, m.MissionID)
	require.NoError(t, err)

	// The watch opens with the current snapshot.
	select {
	case got := <-updates:
		assert.Equal(t, models.StatusPending, got.Status)
	case <-ctx.Done():
		t.Fatal("timed out waiting for initial snapshot")
	}

	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))

	select {
	case got := <-updates:
		assert.Equal(t, models.StatusAssigned, got.Status)
	case <-ctx.Done():
		t.Fatal("timed out waiting for mission update")
	}
}

func TestWatchClientMissionsDeliversListUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first := createMission(t, svc, validParams())

	updates, err := svc.WatchClientMissions(ctx, "client-1")
	require.NoError(t, err)

	// The watch opens with the current result set.
	select {
	case got := <-updates:
		require.Len(t, got, 1)
		assert.Equal(t, first.MissionID, got[0].MissionID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for initial result set")
	}

	second := createMission(t, svc, validParams())

	select {
	case got := <-updates:
		require.Len(t, got, 2)
		// Newest first.
		assert.Equal(t, second.MissionID, got[0].MissionID)
		assert.Equal(t, first.MissionID, got[1].MissionID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for list update")
	}

	// Another client's booking does not wake this watch.
	p := validParams()
	p.ClientID = "client-2"
	p.ClientCode = "OT-ZZZZZ"
	createMission(t, svc, p)

	select {
	case got := <-updates:
		t.Fatalf("unexpected update for another client's mission: %d missions", len(got))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchDriverMissionsDeliversAssignment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m := createMission(t, svc, validParams())

	updates, err := svc.WatchDriverMissions(ctx, "driver-1")
	require.NoError(t, err)

	select {
	case got := <-updates:
		assert.Empty(t, got)
	case <-ctx.Done():
		t.Fatal("timed out waiting for initial result set")
	}

	require.NoError(t, svc.AssignDriver(ctx, m.MissionID, "driver-1", "DR-X9Q3W"))

	select {
	case got := <-updates:
		require.Len(t, got, 1)
		assert.Equal(t, m.MissionID, got[0].MissionID)
		assert.Equal(t, models.StatusAssigned, got[0].Status)
	case <-ctx.Done():
		t.Fatal("timed out waiting for assignment update")
	}
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(models.StatusPending, models.StatusAssigned))
	assert.True(t, CanTransition(models.StatusPending, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusInProgress, models.StatusCompleted))
	assert.True(t, CanTransition(models.StatusAssigned, models.StatusAssigned))

	assert.False(t, CanTransition(models.StatusPending, models.StatusInProgress))
	assert.False(t, CanTransition(models.StatusCompleted, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusCancelled, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusFailed, models.StatusPending))
}

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, models.EventDriverDeparted, EventForStatus(models.StatusDriverEnRoute))
	assert.Equal(t, models.EventCompleted, EventForStatus(models.StatusCompleted))
	assert.Equal(t, models.EventType("pending"), EventForStatus(models.StatusPending))
}
