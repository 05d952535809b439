// Package mission implements the mission lifecycle: creation, driver
// assignment, and the status state machine. Every mutation writes its audit
// event in the same store transaction as the mission document, so the chain
// of custody can never gap on a partial failure.
package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ombra/audit"
	"ombra/codegen"
	"ombra/db"
	"ombra/models"

	"go.uber.org/zap"
)

var (
	// ErrNotFound means the referenced mission does not exist.
	ErrNotFound = errors.New("mission not found")
	// ErrInvalidTransition means the requested status change is not
	// reachable from the current status.
	ErrInvalidTransition = errors.New("invalid mission status transition")
	// ErrUnauthorized means the actor is not the party entitled to the
	// mission.
	ErrUnauthorized = errors.New("not authorized for this mission")
	// ErrInvalidInput means a malformed or missing request field.
	ErrInvalidInput = errors.New("invalid mission input")
)

// transitions is the explicit state machine: the set of statuses reachable
// from each status. Terminal states have no entries.
var transitions = map[models.MissionStatus][]models.MissionStatus{
	models.StatusPending:       {models.StatusAssigned, models.StatusCancelled, models.StatusFailed},
	models.StatusAssigned:      {models.StatusDriverEnRoute, models.StatusCancelled, models.StatusFailed},
	models.StatusDriverEnRoute: {models.StatusDriverArrived, models.StatusCancelled, models.StatusFailed},
	models.StatusDriverArrived: {models.StatusInProgress, models.StatusCancelled, models.StatusFailed},
	models.StatusInProgress:    {models.StatusCompleted, models.StatusCancelled, models.StatusFailed},
}

// CanTransition reports whether moving from one status to another is legal.
// Re-asserting the current status of a non-terminal mission is legal and
// idempotent with respect to lifecycle timestamps.
func CanTransition(from, to models.MissionStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// statusEvents maps a new status to the audit event type it produces.
// Unmapped statuses fall back to the status string itself.
var statusEvents = map[models.MissionStatus]models.EventType{
	models.StatusAssigned:      models.EventAssigned,
	models.StatusDriverEnRoute: models.EventDriverDeparted,
	models.StatusDriverArrived: models.EventDriverArrived,
	models.StatusInProgress:    models.EventStarted,
	models.StatusCompleted:     models.EventCompleted,
	models.StatusCancelled:     models.EventCancelled,
	models.StatusFailed:        models.EventFailed,
}

// EventForStatus returns the audit event type for a status change.
func EventForStatus(status models.MissionStatus) models.EventType {
	if ev, ok := statusEvents[status]; ok {
		return ev
	}
	return models.EventType(status)
}

// Store is the persistence surface the lifecycle manager needs.
type Store interface {
	CreateMission(ctx context.Context, m *models.Mission, buildLog func(missionID string) *models.MissionLog) (string, error)
	GetMission(ctx context.Context, missionID string) (*models.Mission, error)
	MutateMission(ctx context.Context, missionID string, mutate func(*models.Mission) (*models.MissionLog, error)) error
	MissionsByClient(ctx context.Context, clientID string) ([]models.Mission, error)
	MissionsByDriver(ctx context.Context, driverID string) ([]models.Mission, error)
	WatchMission(ctx context.Context, missionID string) (<-chan models.Mission, error)
	WatchMissionsByClient(ctx context.Context, clientID string) (<-chan []models.Mission, error)
	WatchMissionsByDriver(ctx context.Context, driverID string) (<-chan []models.Mission, error)
}

// Service is the mission lifecycle manager.
type Service struct {
	store    Store
	codes    *codegen.Generator
	logger   *zap.SugaredLogger
	currency string
}

// NewService creates a lifecycle manager.
func NewService(store Store, codes *codegen.Generator, currency string, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, codes: codes, currency: currency, logger: logger}
}

// CreateParams are the inputs for booking a mission.
type CreateParams struct {
	ClientID           string
	ClientCode         string
	Type               models.MissionType
	Level              models.SecurityLevel
	Pickup             models.RoutePoint
	Dropoff            models.RoutePoint
	ScheduledFor       time.Time
	EstimatedDuration  int
	BasePrice          float64
	SecurityPremium    float64
	ConfirmationMethod models.ConfirmationMethod
	DocumentDetails    *models.DocumentDetails
}

func (p *CreateParams) validate() error {
	switch {
	case p.ClientID == "" || p.ClientCode == "":
		return fmt.Errorf("%w: client identity required", ErrInvalidInput)
	case p.Type != models.MissionTypePerson && p.Type != models.MissionTypeDocument:
		return fmt.Errorf("%w: unknown mission type %q", ErrInvalidInput, p.Type)
	case models.SecurityLevelRank(p.Level) < 0:
		return fmt.Errorf("%w: unknown security level %q", ErrInvalidInput, p.Level)
	case p.EstimatedDuration <= 0:
		return fmt.Errorf("%w: estimated duration must be positive", ErrInvalidInput)
	case p.BasePrice < 0 || p.SecurityPremium < 0:
		return fmt.Errorf("%w: negative price", ErrInvalidInput)
	case !validCoordinates(p.Pickup.Coordinates) || !validCoordinates(p.Dropoff.Coordinates):
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	case p.Pickup.Address == "" || p.Dropoff.Address == "":
		return fmt.Errorf("%w: pickup and dropoff addresses required", ErrInvalidInput)
	case p.Type == models.MissionTypeDocument && p.DocumentDetails == nil:
		return fmt.Errorf("%w: document missions require document details", ErrInvalidInput)
	}
	return nil
}

func validCoordinates(c models.Coordinates) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Create books a new mission: generates its anonymous mission code and
// confirmation code, persists it in pending status and writes the created
// audit event, all atomically from the caller's perspective.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Mission, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	missionCode, err := s.codes.GenerateAnonymousCode(ctx, codegen.CodeMission, "")
	if err != nil {
		return nil, fmt.Errorf("generate mission code: %w", err)
	}

	method := p.ConfirmationMethod
	if method == "" {
		method = models.ConfirmQR
	}
	confirmation := codegen.GenerateConfirmationCode()
	if method == models.ConfirmPIN {
		confirmation = codegen.GeneratePIN()
	}

	m := &models.Mission{
		MissionCode:        missionCode,
		Type:               p.Type,
		Level:              p.Level,
		ClientID:           p.ClientID,
		ClientCode:         p.ClientCode,
		Pickup:             p.Pickup,
		Dropoff:            p.Dropoff,
		RequestedAt:        time.Now().UTC(),
		ScheduledFor:       p.ScheduledFor,
		Status:             models.StatusPending,
		EstimatedDuration:  p.EstimatedDuration,
		BasePrice:          p.BasePrice,
		SecurityPremium:    p.SecurityPremium,
		TotalPrice:         p.BasePrice + p.SecurityPremium,
		Currency:           s.currency,
		ConfirmationMethod: method,
		ConfirmationCode:   confirmation,
		DocumentDetails:    p.DocumentDetails,
	}

	_, err = s.store.CreateMission(ctx, m, func(missionID string) *models.MissionLog {
		return audit.NewLog(audit.Event{
			MissionID: missionID,
			EventType: models.EventCreated,
			UserID:    p.ClientID,
			UserRole:  models.ActorClient,
			Details: map[string]string{
				"mission_code":   missionCode,
				"security_level": string(p.Level),
				"mission_type":   string(p.Type),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("mission created",
		"mission_id", m.MissionID,
		"mission_code", m.MissionCode,
		"level", m.Level,
		"type", m.Type,
	)
	return m, nil
}

// AssignDriver binds a driver to a pending mission and moves it to assigned.
// Assignment of a mission that is no longer pending is rejected.
func (s *Service) AssignDriver(ctx context.Context, missionID, driverID, driverCode string) error {
	if driverID == "" || driverCode == "" {
		return fmt.Errorf("%w: driver identity required", ErrInvalidInput)
	}

	err := s.store.MutateMission(ctx, missionID, func(m *models.Mission) (*models.MissionLog, error) {
		if m.Status != models.StatusPending {
			return nil, fmt.Errorf("%w: cannot assign driver while %s", ErrInvalidTransition, m.Status)
		}
		m.DriverID = driverID
		m.DriverCode = driverCode
		m.Status = models.StatusAssigned

		return audit.NewLog(audit.Event{
			MissionID: missionID,
			EventType: models.EventAssigned,
			UserID:    driverID,
			UserRole:  models.ActorDriver,
			Details:   map[string]string{"driver_code": driverCode},
		}), nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	s.logger.Infow("driver assigned", "mission_id", missionID, "driver_code", driverCode)
	return nil
}

// StatusUpdate carries the optional extras of a status change.
type StatusUpdate struct {
	Location *models.Coordinates
	Details  map[string]string
	Anomaly  string
	// Timestamp, when set, overrides the lifecycle timestamp that would
	// otherwise be stamped with the current time.
	Timestamp *time.Time
	// ConfirmationCode, when set on a transition to completed, is validated
	// against the mission's stored code and stamps ConfirmedAt.
	ConfirmationCode string
}

// UpdateStatus advances a mission through the state machine. The transition
// is validated against the transition table inside the store transaction;
// the matching lifecycle timestamp is stamped exactly once; the audit event
// is appended atomically with the mission write.
func (s *Service) UpdateStatus(ctx context.Context, missionID string, newStatus models.MissionStatus, userID string, userRole models.ActorRole, update *StatusUpdate) error {
	if update == nil {
		update = &StatusUpdate{}
	}

	err := s.store.MutateMission(ctx, missionID, func(m *models.Mission) (*models.MissionLog, error) {
		if !CanTransition(m.Status, newStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, newStatus)
		}

		ts := time.Now().UTC()
		if update.Timestamp != nil {
			ts = update.Timestamp.UTC()
		}
		stampLifecycle(m, newStatus, ts, update.Timestamp != nil)

		if newStatus == models.StatusCompleted && update.ConfirmationCode != "" {
			if !codegen.ValidateConfirmationCode(update.ConfirmationCode, m.ConfirmationCode) {
				return nil, fmt.Errorf("%w: confirmation code mismatch", ErrInvalidInput)
			}
			m.ConfirmedAt = &ts
		}

		m.Status = newStatus

		return audit.NewLog(audit.Event{
			MissionID: missionID,
			EventType: EventForStatus(newStatus),
			UserID:    userID,
			UserRole:  userRole,
			Location:  update.Location,
			Details:   update.Details,
			Anomaly:   update.Anomaly,
		}), nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	s.logger.Infow("mission status updated",
		"mission_id", missionID,
		"status", newStatus,
		"actor", userRole,
	)
	return nil
}

// stampLifecycle sets the lifecycle timestamp matching the new status. A
// timestamp already present is never overwritten unless the caller supplied
// an explicit override.
func stampLifecycle(m *models.Mission, status models.MissionStatus, ts time.Time, override bool) {
	set := func(field **time.Time) {
		if *field == nil || override {
			t := ts
			*field = &t
		}
	}
	switch status {
	case models.StatusDriverEnRoute:
		set(&m.DriverDepartedAt)
	case models.StatusDriverArrived:
		set(&m.DriverArrivedAt)
	case models.StatusInProgress:
		set(&m.MissionStartedAt)
	case models.StatusCompleted:
		set(&m.MissionCompletedAt)
	}
}

// RecordDocumentScan stores a pickup or delivery scan reference on a
// document mission and logs a document_scanned event.
func (s *Service) RecordDocumentScan(ctx context.Context, missionID, phase, scanRef, userID string) error {
	if phase != "pickup" && phase != "delivery" {
		return fmt.Errorf("%w: scan phase must be pickup or delivery", ErrInvalidInput)
	}
	if scanRef == "" {
		return fmt.Errorf("%w: scan reference required", ErrInvalidInput)
	}

	err := s.store.MutateMission(ctx, missionID, func(m *models.Mission) (*models.MissionLog, error) {
		if m.Type != models.MissionTypeDocument {
			return nil, fmt.Errorf("%w: not a document mission", ErrInvalidInput)
		}
		if m.DocumentDetails == nil {
			m.DocumentDetails = &models.DocumentDetails{}
		}
		if phase == "pickup" {
			m.DocumentDetails.ScanAtPickup = scanRef
		} else {
			m.DocumentDetails.ScanAtDelivery = scanRef
		}

		return audit.NewLog(audit.Event{
			MissionID: missionID,
			EventType: models.EventDocumentScanned,
			UserID:    userID,
			UserRole:  models.ActorDriver,
			Details:   map[string]string{"phase": phase, "scan_ref": scanRef},
		}), nil
	})
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Get retrieves one mission.
func (s *Service) Get(ctx context.Context, missionID string) (*models.Mission, error) {
	m, err := s.store.GetMission(ctx, missionID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

// ClientMissions lists a client's missions, newest first.
func (s *Service) ClientMissions(ctx context.Context, clientID string) ([]models.Mission, error) {
	return s.store.MissionsByClient(ctx, clientID)
}

// DriverMissions lists a driver's missions, newest first.
func (s *Service) DriverMissions(ctx context.Context, driverID string) ([]models.Mission, error) {
	return s.store.MissionsByDriver(ctx, driverID)
}

// DriverMissionView returns a mission for the driver-side screens, enforcing
// that the requesting driver is the assigned driver.
func (s *Service) DriverMissionView(ctx context.Context, missionID, driverID string) (*models.Mission, error) {
	m, err := s.Get(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.DriverID != driverID {
		return nil, ErrUnauthorized
	}
	return m, nil
}

// Watch streams mission updates until ctx is cancelled.
func (s *Service) Watch(ctx context.Context, missionID string) (<-chan models.Mission, error) {
	return s.store.WatchMission(ctx, missionID)
}

// WatchClientMissions streams a client's mission list on every change.
func (s *Service) WatchClientMissions(ctx context.Context, clientID string) (<-chan []models.Mission, error) {
	return s.store.WatchMissionsByClient(ctx, clientID)
}

// WatchDriverMissions streams a driver's mission list on every change.
func (s *Service) WatchDriverMissions(ctx context.Context, driverID string) (<-chan []models.Mission, error) {
	return s.store.WatchMissionsByDriver(ctx, driverID)
}
