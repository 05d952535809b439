// Package audit maintains the append-only mission event log and its
// chain-of-custody projection.
//
// Every event carries an integrity checksum computed with a 32-bit rolling
// hash over a canonical serialization of the payload. The checksum is
// deliberately non-cryptographic: it detects accidental corruption, not a
// deliberate tamperer. Callers that need a real guarantee must layer an HMAC
// on top; this package does not do it for them.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"ombra/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence surface for the event log.
type Store interface {
	AppendMissionLog(ctx context.Context, logEntry *models.MissionLog) error
	MissionLogs(ctx context.Context, missionID string) ([]models.MissionLog, error)
}

// Service records and reads mission audit events.
type Service struct {
	store  Store
	logger *zap.SugaredLogger
}

// NewService creates an audit service.
func NewService(store Store, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, logger: logger}
}

// Event is the input for one audit record.
type Event struct {
	MissionID string
	EventType models.EventType
	UserID    string
	UserRole  models.ActorRole
	Location  *models.Coordinates
	Details   map[string]string
	Anomaly   string
}

// NewLog builds a sealed MissionLog from an event, stamping the log ID and
// timestamp. The returned entry is ready to persist.
func NewLog(ev Event) *models.MissionLog {
	entry := &models.MissionLog{
		LogID:     uuid.NewString(),
		MissionID: ev.MissionID,
		EventType: ev.EventType,
		Timestamp: time.Now().UTC(),
		UserID:    ev.UserID,
		UserRole:  ev.UserRole,
		Location:  ev.Location,
		Details:   ev.Details,
		Anomaly:   ev.Anomaly,
	}
	Seal(entry)
	return entry
}

// LogMissionEvent appends one event to the mission log. A persistence
// failure is fatal to the enclosing operation; the audit trail must not
// silently gap.
func (s *Service) LogMissionEvent(ctx context.Context, ev Event) error {
	entry := NewLog(ev)
	if err := s.store.AppendMissionLog(ctx, entry); err != nil {
		return fmt.Errorf("log mission event %s: %w", ev.EventType, err)
	}
	s.logger.Infow("mission event logged",
		"mission_id", ev.MissionID,
		"event", ev.EventType,
		"actor", ev.UserRole,
	)
	return nil
}

// ChainOfCustody reads all events for a mission in timestamp order and
// projects each to a custody entry. Verified is the result of recomputing
// the stored checksum against the payload, not an unconditional flag.
func (s *Service) ChainOfCustody(ctx context.Context, missionID string) ([]models.CustodyEntry, error) {
	logs, err := s.store.MissionLogs(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("read mission logs: %w", err)
	}

	chain := make([]models.CustodyEntry, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		verified := Verify(l)
		if !verified {
			s.logger.Warnw("mission log failed checksum recheck",
				"mission_id", missionID,
				"log_id", l.LogID,
				"event", l.EventType,
			)
		}
		chain = append(chain, models.CustodyEntry{
			Event:       l.EventType,
			Timestamp:   l.Timestamp,
			Location:    l.Location,
			PerformedBy: l.UserID,
			Verified:    verified,
			Checksum:    l.IntegrityChecksum,
		})
	}
	return chain, nil
}

// Seal computes and stores the integrity checksum of a log entry.
func Seal(l *models.MissionLog) {
	l.IntegrityChecksum = Checksum(canonicalPayload(l))
}

// Verify recomputes the checksum of a log entry and compares it to the
// stored value.
func Verify(l *models.MissionLog) bool {
	return l.IntegrityChecksum == Checksum(canonicalPayload(l))
}

// Checksum is the rolling hash applied to a canonical payload string: for
// each UTF-16 code unit, hash = (hash << 5) - hash + unit, on wrapping
// 32-bit signed arithmetic, rendered as lowercase hex of the final 32-bit
// value. Hashing code units rather than runes keeps checksums stable for
// payloads containing characters outside the basic multilingual plane.
func Checksum(payload string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(payload)) {
		h = (h << 5) - h + int32(u)
	}
	return strconv.FormatUint(uint64(uint32(h)), 16)
}

// canonicalPayload serializes the checksummed fields of a log entry in a
// fixed order. Details keys are sorted so map iteration order never changes
// the checksum.
func canonicalPayload(l *models.MissionLog) string {
	var b strings.Builder
	b.WriteString(l.MissionID)
	b.WriteByte('|')
	b.WriteString(string(l.EventType))
	b.WriteByte('|')
	b.WriteString(l.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(l.UserID)
	b.WriteByte('|')
	b.WriteString(string(l.UserRole))
	b.WriteByte('|')
	if l.Location != nil {
		fmt.Fprintf(&b, "%.6f,%.6f", l.Location.Lat, l.Location.Lng)
	}
	b.WriteByte('|')
	keys := make([]string, 0, len(l.Details))
	for k := range l.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(l.Details[k])
	}
	b.WriteByte('|')
	b.WriteString(l.Anomaly)
	return b.String()
}
