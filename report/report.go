// Package report assembles the chain-of-custody report for document
// missions: the full audit trail, the pickup and delivery scan references,
// the confirmation metadata and a report-level integrity checksum.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ombra/audit"
	"ombra/db"
	"ombra/mission"
	"ombra/models"

	"go.uber.org/zap"
)

var (
	// ErrNotFound means the referenced report does not exist.
	ErrNotFound = errors.New("report not found")
	// ErrNotDocumentMission means a report was requested for a mission that
	// is not a document delivery.
	ErrNotDocumentMission = errors.New("mission is not a document mission")
)

// Store is the persistence surface for reports.
type Store interface {
	GetMission(ctx context.Context, missionID string) (*models.Mission, error)
	CreateReport(ctx context.Context, r *models.DocumentReport) (string, error)
	GetReport(ctx context.Context, reportID string) (*models.DocumentReport, error)
}

// Service builds and serves document chain-of-custody reports.
type Service struct {
	store  Store
	audit  *audit.Service
	logger *zap.SugaredLogger
}

// NewService creates a report service.
func NewService(store Store, auditSvc *audit.Service, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, audit: auditSvc, logger: logger}
}

// Generate builds and persists the chain-of-custody report for a document
// mission and returns the new report ID.
func (s *Service) Generate(ctx context.Context, missionID string) (string, error) {
	m, err := s.store.GetMission(ctx, missionID)
	if errors.Is(err, db.ErrNotFound) {
		return "", mission.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if m.Type != models.MissionTypeDocument {
		return "", fmt.Errorf("%w: mission %s is %s", ErrNotDocumentMission, missionID, m.Type)
	}

	chain, err := s.audit.ChainOfCustody(ctx, missionID)
	if err != nil {
		return "", fmt.Errorf("build chain of custody: %w", err)
	}

	r := &models.DocumentReport{
		MissionID:        m.MissionID,
		MissionCode:      m.MissionCode,
		Level:            m.Level,
		GeneratedAt:      time.Now().UTC(),
		Chain:            chain,
		PickupAddress:    m.Pickup.Address,
		DropoffAddress:   m.Dropoff.Address,
		ConfirmationUsed: m.ConfirmationMethod,
		ConfirmedAt:      m.ConfirmedAt,
		LegallyValid:     true,
	}
	if m.DocumentDetails != nil {
		r.ScanAtPickup = m.DocumentDetails.ScanAtPickup
		r.ScanAtDelivery = m.DocumentDetails.ScanAtDelivery
	}
	r.ReportChecksum = reportChecksum(r)

	reportID, err := s.store.CreateReport(ctx, r)
	if err != nil {
		return "", fmt.Errorf("persist report: %w", err)
	}

	s.logger.Infow("document report generated",
		"report_id", reportID,
		"mission_id", missionID,
		"events", len(chain),
	)
	return reportID, nil
}

// Get retrieves a persisted report.
func (s *Service) Get(ctx context.Context, reportID string) (*models.DocumentReport, error) {
	r, err := s.store.GetReport(ctx, reportID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return r, err
}

// reportChecksum covers the identifying fields of the report with the same
// rolling hash used for individual audit events. Like the event checksum it
// is tamper evidence, not a signature.
func reportChecksum(r *models.DocumentReport) string {
	var b strings.Builder
	b.WriteString(r.MissionID)
	b.WriteByte('|')
	b.WriteString(r.MissionCode)
	b.WriteByte('|')
	b.WriteString(string(r.Level))
	b.WriteByte('|')
	b.WriteString(r.GeneratedAt.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(r.ScanAtPickup)
	b.WriteByte('|')
	b.WriteString(r.ScanAtDelivery)
	b.WriteByte('|')
	for i := range r.Chain {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.Chain[i].Checksum)
	}
	return audit.Checksum(b.String())
}
