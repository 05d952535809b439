// models.go
// Core data structures shared by the Ombra mission API and its Firestore documents.

package models

import (
	"time"
)

// MissionType distinguishes person transport from sealed document delivery.
type MissionType string

const (
	MissionTypePerson   MissionType = "person"
	MissionTypeDocument MissionType = "document"
)

// SecurityLevel is the service tier of a mission. Tiers are ordered:
// standard < discreet < confidential < critical.
type SecurityLevel string

const (
	LevelStandard     SecurityLevel = "standard"
	LevelDiscreet     SecurityLevel = "discreet"
	LevelConfidential SecurityLevel = "confidential"
	LevelCritical     SecurityLevel = "critical"
)

// SecurityLevelRank returns the position of a level on the ordinal scale,
// or -1 for an unknown level.
func SecurityLevelRank(level SecurityLevel) int {
	switch level {
	case LevelStandard:
		return 0
	case LevelDiscreet:
		return 1
	case LevelConfidential:
		return 2
	case LevelCritical:
		return 3
	}
	return -1
}

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	StatusPending       MissionStatus = "pending"
	StatusAssigned      MissionStatus = "assigned"
	StatusDriverEnRoute MissionStatus = "driver_en_route"
	StatusDriverArrived MissionStatus = "driver_arrived"
	StatusInProgress    MissionStatus = "in_progress"
	StatusCompleted     MissionStatus = "completed"
	StatusCancelled     MissionStatus = "cancelled"
	StatusFailed        MissionStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s MissionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// ConfirmationMethod is the channel used to confirm mission completion.
type ConfirmationMethod string

const (
	ConfirmQR     ConfirmationMethod = "qr"
	ConfirmNFC    ConfirmationMethod = "nfc"
	ConfirmPIN    ConfirmationMethod = "pin"
	ConfirmVisual ConfirmationMethod = "visual"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `firestore:"lat" json:"lat"`
	Lng float64 `firestore:"lng" json:"lng"`
}

// RoutePoint is one end of a mission route.
type RoutePoint struct {
	Address     string      `firestore:"address" json:"address"`
	Coordinates Coordinates `firestore:"coordinates" json:"coordinates"`
	Timestamp   time.Time   `firestore:"timestamp" json:"timestamp"`
}

// DocumentDetails carries the document-specific payload of a document mission.
type DocumentDetails struct {
	DocumentType   string `firestore:"document_type" json:"document_type"`
	SealedPackage  bool   `firestore:"sealed_package" json:"sealed_package"`
	ScanAtPickup   string `firestore:"scan_at_pickup,omitempty" json:"scan_at_pickup,omitempty"`
	ScanAtDelivery string `firestore:"scan_at_delivery,omitempty" json:"scan_at_delivery,omitempty"`
	RecipientName  string `firestore:"recipient_name,omitempty" json:"recipient_name,omitempty"`
	RecipientCode  string `firestore:"recipient_code,omitempty" json:"recipient_code,omitempty"`
}

// Mission is the central entity: one transport or delivery engagement.
// Maps directly to a Firestore document in the "missions" collection.
type Mission struct {
	MissionID   string        `firestore:"mission_id" json:"mission_id"` // store-assigned document ID
	MissionCode string        `firestore:"mission_code" json:"mission_code"`
	Type        MissionType   `firestore:"type" json:"type"`
	Level       SecurityLevel `firestore:"security_level" json:"security_level"`

	ClientID   string `firestore:"client_id" json:"client_id"`
	ClientCode string `firestore:"client_code" json:"client_code"`
	DriverID   string `firestore:"driver_id,omitempty" json:"driver_id,omitempty"`
	DriverCode string `firestore:"driver_code,omitempty" json:"driver_code,omitempty"`

	Pickup  RoutePoint `firestore:"pickup" json:"pickup"`
	Dropoff RoutePoint `firestore:"dropoff" json:"dropoff"`

	RequestedAt  time.Time `firestore:"requested_at" json:"requested_at"`
	ScheduledFor time.Time `firestore:"scheduled_for" json:"scheduled_for"`

	// Lifecycle timestamps, each populated exactly once the first time the
	// corresponding status is reached.
	DriverDepartedAt   *time.Time `firestore:"driver_departed_at,omitempty" json:"driver_departed_at,omitempty"`
	DriverArrivedAt    *time.Time `firestore:"driver_arrived_at,omitempty" json:"driver_arrived_at,omitempty"`
	MissionStartedAt   *time.Time `firestore:"mission_started_at,omitempty" json:"mission_started_at,omitempty"`
	MissionCompletedAt *time.Time `firestore:"mission_completed_at,omitempty" json:"mission_completed_at,omitempty"`

	Status MissionStatus `firestore:"status" json:"status"`

	EstimatedDuration int     `firestore:"estimated_duration" json:"estimated_duration"` // minutes
	BasePrice         float64 `firestore:"base_price" json:"base_price"`
	SecurityPremium   float64 `firestore:"security_premium" json:"security_premium"`
	TotalPrice        float64 `firestore:"total_price" json:"total_price"`
	Currency          string  `firestore:"currency" json:"currency"`

	ConfirmationMethod ConfirmationMethod `firestore:"confirmation_method" json:"confirmation_method"`
	ConfirmationCode   string             `firestore:"confirmation_code" json:"confirmation_code"`
	ConfirmedAt        *time.Time         `firestore:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`

	DocumentDetails *DocumentDetails `firestore:"document_details,omitempty" json:"document_details,omitempty"`
}

// EventType categorizes mission audit events.
type EventType string

const (
	EventCreated         EventType = "created"
	EventAssigned        EventType = "assigned"
	EventDriverDeparted  EventType = "driver_departed"
	EventDriverArrived   EventType = "driver_arrived"
	EventStarted         EventType = "started"
	EventCompleted       EventType = "completed"
	EventCancelled       EventType = "cancelled"
	EventFailed          EventType = "failed"
	EventDocumentScanned EventType = "document_scanned"
	EventAnomalyDetected EventType = "anomaly_detected"
)

// ActorRole identifies the party performing a logged action.
type ActorRole string

const (
	ActorClient ActorRole = "client"
	ActorDriver ActorRole = "driver"
	ActorSystem ActorRole = "system"
	ActorAdmin  ActorRole = "admin"
)

// MissionLog is one append-only audit event for a mission. Logs are never
// updated or deleted; ordered by timestamp ascending they reconstruct the
// mission's chain of custody.
type MissionLog struct {
	LogID     string            `firestore:"log_id" json:"log_id"`
	MissionID string            `firestore:"mission_id" json:"mission_id"`
	EventType EventType         `firestore:"event_type" json:"event_type"`
	Timestamp time.Time         `firestore:"timestamp" json:"timestamp"`
	UserID    string            `firestore:"user_id" json:"user_id"`
	UserRole  ActorRole         `firestore:"user_role" json:"user_role"`
	Location  *Coordinates      `firestore:"location,omitempty" json:"location,omitempty"`
	Details   map[string]string `firestore:"details,omitempty" json:"details,omitempty"`
	Anomaly   string            `firestore:"anomaly,omitempty" json:"anomaly,omitempty"`

	// IntegrityChecksum is a non-cryptographic rolling hash over the event
	// payload. It detects accidental corruption only; it is not a signature
	// and offers no protection against a deliberate tamperer.
	IntegrityChecksum string `firestore:"log_hash" json:"log_hash"`
}

// DriverRequirements is the minimum driver profile for a security level.
type DriverRequirements struct {
	MinRating             float64 `firestore:"min_rating" json:"min_rating"`
	RequiresCertification bool    `firestore:"requires_certification" json:"requires_certification"`
	BackgroundCheckTier   int     `firestore:"background_check_tier" json:"background_check_tier"`
	MinCompletedMissions  int     `firestore:"min_completed_missions" json:"min_completed_missions"`
}

// LevelFeatures are the feature flags a security level switches on.
type LevelFeatures struct {
	EnhancedLogging    bool `firestore:"enhanced_logging" json:"enhanced_logging"`
	DedicatedSupport   bool `firestore:"dedicated_support" json:"dedicated_support"`
	PriorityAssignment bool `firestore:"priority_assignment" json:"priority_assignment"`
	AnomalyMonitoring  bool `firestore:"anomaly_monitoring" json:"anomaly_monitoring"`
	LegalReport        bool `firestore:"legal_report" json:"legal_report"`
}

// SecurityLevelConfig is the static policy row for one security level.
// Seeded once at startup if absent, read-only thereafter.
type SecurityLevelConfig struct {
	Level               SecurityLevel      `firestore:"level" json:"level"`
	PriceMultiplier     float64            `firestore:"price_multiplier" json:"price_multiplier"`
	DriverRequirements  DriverRequirements `firestore:"driver_requirements" json:"driver_requirements"`
	VehicleRequirements []string           `firestore:"vehicle_requirements" json:"vehicle_requirements"`
	Features            LevelFeatures      `firestore:"features" json:"features"`
	AvailableToPublic   bool               `firestore:"available_to_public" json:"available_to_public"`
	RequiresPreApproval bool               `firestore:"requires_pre_approval" json:"requires_pre_approval"`
}

// DriverProfile holds the eligibility attributes of a driver.
type DriverProfile struct {
	DriverID           string        `firestore:"driver_id" json:"driver_id"`
	DriverCode         string        `firestore:"driver_code" json:"driver_code"`
	Rating             float64       `firestore:"rating" json:"rating"`
	CompletedMissions  int           `firestore:"completed_missions" json:"completed_missions"`
	MaxSecurityLevel   SecurityLevel `firestore:"max_security_level" json:"max_security_level"`
	CertificationLevel SecurityLevel `firestore:"certification_level,omitempty" json:"certification_level,omitempty"`
	BackgroundTier     int           `firestore:"background_tier" json:"background_tier"`
}

// CustodyEntry is one projected chain-of-custody step.
type CustodyEntry struct {
	Event       EventType    `firestore:"event" json:"event"`
	Timestamp   time.Time    `firestore:"timestamp" json:"timestamp"`
	Location    *Coordinates `firestore:"location,omitempty" json:"location,omitempty"`
	PerformedBy string       `firestore:"performed_by" json:"performed_by"`
	// Verified is the result of recomputing the stored integrity checksum
	// against the log payload at read time.
	Verified bool   `firestore:"verified" json:"verified"`
	Checksum string `firestore:"checksum" json:"checksum"`
}

// DocumentReport is the persisted chain-of-custody report for a document
// mission.
type DocumentReport struct {
	ReportID         string             `firestore:"report_id" json:"report_id"`
	MissionID        string             `firestore:"mission_id" json:"mission_id"`
	MissionCode      string             `firestore:"mission_code" json:"mission_code"`
	Level            SecurityLevel      `firestore:"security_level" json:"security_level"`
	GeneratedAt      time.Time          `firestore:"generated_at" json:"generated_at"`
	Chain            []CustodyEntry     `firestore:"chain" json:"chain"`
	ScanAtPickup     string             `firestore:"scan_at_pickup,omitempty" json:"scan_at_pickup,omitempty"`
	ScanAtDelivery   string             `firestore:"scan_at_delivery,omitempty" json:"scan_at_delivery,omitempty"`
	PickupAddress    string             `firestore:"pickup_address" json:"pickup_address"`
	DropoffAddress   string             `firestore:"dropoff_address" json:"dropoff_address"`
	ConfirmationUsed ConfirmationMethod `firestore:"confirmation_used" json:"confirmation_used"`
	ConfirmedAt      *time.Time         `firestore:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	ReportChecksum   string             `firestore:"report_checksum" json:"report_checksum"`
	LegallyValid     bool               `firestore:"legally_valid" json:"legally_valid"`
}

// UserRole defines the access level of an account.
type UserRole string

const (
	RoleClient UserRole = "CLIENT"
	RoleDriver UserRole = "DRIVER"
	RoleAdmin  UserRole = "ADMIN"
)

// User represents an authenticated account in the system.
type User struct {
	UserID        string    `firestore:"user_id" json:"user_id"`
	Username      string    `firestore:"username" json:"username"`
	RealName      string    `firestore:"real_name" json:"real_name"`
	AnonymousCode string    `firestore:"anonymous_code" json:"anonymous_code"`
	Role          UserRole  `firestore:"role" json:"role"`
	LastLogin     time.Time `firestore:"last_login" json:"last_login"`
}

// AuthRequest is the login payload.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse returns the tokens and user details.
type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}
