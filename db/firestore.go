package db

import (
	"context"
	"fmt"
	"time"

	"ombra/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection names.
const (
	colMissions       = "missions"
	colMissionLogs    = "mission_logs"
	colSecurityLevels = "security_levels"
	colCodes          = "codes"
	colDriverProfiles = "driver_profiles"
	colReports        = "reports"
	colUsers          = "users"
	colPasswords      = "passwords"
)

// FirestoreDB wraps the Firestore client
type FirestoreDB struct {
	client *firestore.Client
}

// NewFirestoreDB initializes a new Firestore client
func NewFirestoreDB(ctx context.Context, projectID, credentialsPath string) (*FirestoreDB, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	return &FirestoreDB{client: client}, nil
}

// Close closes the Firestore client
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

// mapError converts Firestore SDK errors to store sentinels.
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyExists
	}
	return err
}

// --- Code Reservations ---

// ReserveCode claims an anonymous code inside its namespace. The reservation
// document ID is the code itself, so uniqueness is enforced by the store
// rather than by a check-then-act read. Returns ErrAlreadyExists when the
// code is taken.
func (db *FirestoreDB) ReserveCode(ctx context.Context, namespace, code string) error {
	ref := db.client.Collection(colCodes).Doc(namespace + ":" + code)
	_, err := ref.Create(ctx, map[string]interface{}{
		"namespace":   namespace,
		"code":        code,
		"reserved_at": time.Now(),
	})
	if err != nil {
		if mapped := mapError(err); mapped == ErrAlreadyExists {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to reserve code: %w", err)
	}
	return nil
}

// --- Mission Operations ---

// CreateMission persists a new mission together with its first audit log
// entry in a single transaction, so no partial mission is ever visible.
// buildLog receives the store-assigned mission ID.
func (db *FirestoreDB) CreateMission(ctx context.Context, m *models.Mission, buildLog func(missionID string) *models.MissionLog) (string, error) {
	ref := db.client.Collection(colMissions).NewDoc()
	m.MissionID = ref.ID
	logEntry := buildLog(ref.ID)
	logRef := db.client.Collection(colMissionLogs).Doc(logEntry.LogID)

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(ref, m); err != nil {
			return err
		}
		return tx.Create(logRef, logEntry)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create mission: %w", mapError(err))
	}
	return ref.ID, nil
}

// GetMission retrieves a mission by ID
func (db *FirestoreDB) GetMission(ctx context.Context, missionID string) (*models.Mission, error) {
	doc, err := db.client.Collection(colMissions).Doc(missionID).Get(ctx)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}

	var m models.Mission
	if err := doc.DataTo(&m); err != nil {
		return nil, fmt.Errorf("failed to parse mission: %w", err)
	}
	return &m, nil
}

// MutateMission applies a read-modify-write to one mission and appends the
// audit log entry returned by mutate, atomically. mutate runs inside the
// transaction: it validates and updates the mission in place and returns the
// event to append, or an error to abort the whole transaction.
func (db *FirestoreDB) MutateMission(ctx context.Context, missionID string, mutate func(*models.Mission) (*models.MissionLog, error)) error {
	ref := db.client.Collection(colMissions).Doc(missionID)

	err := db.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return mapError(err)
		}
		var m models.Mission
		if err := doc.DataTo(&m); err != nil {
			return fmt.Errorf("failed to parse mission: %w", err)
		}

		logEntry, err := mutate(&m)
		if err != nil {
			return err
		}

		if err := tx.Set(ref, &m); err != nil {
			return err
		}
		logRef := db.client.Collection(colMissionLogs).Doc(logEntry.LogID)
		return tx.Create(logRef, logEntry)
	})
	return err
}

// MissionsByClient retrieves a client's missions, newest first.
func (db *FirestoreDB) MissionsByClient(ctx context.Context, clientID string) ([]models.Mission, error) {
	iter := db.client.Collection(colMissions).
		Where("client_id", "==", clientID).
		OrderBy("requested_at", firestore.Desc).
		Documents(ctx)
	return collectMissions(iter)
}

// MissionsByDriver retrieves a driver's assigned missions, newest first.
func (db *FirestoreDB) MissionsByDriver(ctx context.Context, driverID string) ([]models.Mission, error) {
	iter := db.client.Collection(colMissions).
		Where("driver_id", "==", driverID).
		OrderBy("requested_at", firestore.Desc).
		Documents(ctx)
	return collectMissions(iter)
}

func collectMissions(iter *firestore.DocumentIterator) ([]models.Mission, error) {
	defer iter.Stop()

	var missions []models.Mission
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate missions: %w", err)
		}

		var m models.Mission
		if err := doc.DataTo(&m); err != nil {
			return nil, fmt.Errorf("failed to parse mission %s: %w", doc.Ref.ID, err)
		}
		missions = append(missions, m)
	}
	return missions, nil
}

// WatchMission streams the mission document on every change until ctx is
// cancelled. The channel is closed when the stream ends.
func (db *FirestoreDB) WatchMission(ctx context.Context, missionID string) (<-chan models.Mission, error) {
	snapshots := db.client.Collection(colMissions).Doc(missionID).Snapshots(ctx)
	out := make(chan models.Mission, 1)

	go func() {
		defer close(out)
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				return
			}
			if !snap.Exists() {
				continue
			}
			var m models.Mission
			if err := snap.DataTo(&m); err != nil {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// WatchMissionsByClient streams a client's mission list whenever any
// mission in it changes. Each emission is the full ordered result set.
func (db *FirestoreDB) WatchMissionsByClient(ctx context.Context, clientID string) (<-chan []models.Mission, error) {
	return db.watchMissionQuery(ctx, "client_id", clientID)
}

// WatchMissionsByDriver streams a driver's mission list whenever any
// mission in it changes.
func (db *FirestoreDB) WatchMissionsByDriver(ctx context.Context, driverID string) (<-chan []models.Mission, error) {
	return db.watchMissionQuery(ctx, "driver_id", driverID)
}

func (db *FirestoreDB) watchMissionQuery(ctx context.Context, field, value string) (<-chan []models.Mission, error) {
	snapshots := db.client.Collection(colMissions).
		Where(field, "==", value).
		OrderBy("requested_at", firestore.Desc).
		Snapshots(ctx)
	out := make(chan []models.Mission, 1)

	go func() {
		defer close(out)
		defer snapshots.Stop()
		for {
			snap, err := snapshots.Next()
			if err != nil {
				return
			}
			missions, err := collectMissions(snap.Documents)
			if err != nil {
				continue
			}
			select {
			case out <- missions:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// --- Mission Log Operations ---

// AppendMissionLog appends one audit event. Logs are append-only: Create
// fails rather than overwriting an existing log ID.
func (db *FirestoreDB) AppendMissionLog(ctx context.Context, logEntry *models.MissionLog) error {
	_, err := db.client.Collection(colMissionLogs).Doc(logEntry.LogID).Create(ctx, logEntry)
	if err != nil {
		return fmt.Errorf("failed to append mission log: %w", mapError(err))
	}
	return nil
}

// MissionLogs retrieves all audit events for a mission ordered by timestamp
// ascending (chain-of-custody order).
func (db *FirestoreDB) MissionLogs(ctx context.Context, missionID string) ([]models.MissionLog, error) {
	iter := db.client.Collection(colMissionLogs).
		Where("mission_id", "==", missionID).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var logs []models.MissionLog
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate mission logs: %w", err)
		}

		var l models.MissionLog
		if err := doc.DataTo(&l); err != nil {
			return nil, fmt.Errorf("failed to parse mission log %s: %w", doc.Ref.ID, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// --- Security Level Operations ---

// PutSecurityLevel writes one security level config row.
func (db *FirestoreDB) PutSecurityLevel(ctx context.Context, cfg *models.SecurityLevelConfig) error {
	_, err := db.client.Collection(colSecurityLevels).Doc(string(cfg.Level)).Set(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to put security level: %w", err)
	}
	return nil
}

// GetSecurityLevel retrieves the config for one level.
func (db *FirestoreDB) GetSecurityLevel(ctx context.Context, level models.SecurityLevel) (*models.SecurityLevelConfig, error) {
	doc, err := db.client.Collection(colSecurityLevels).Doc(string(level)).Get(ctx)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get security level: %w", err)
	}

	var cfg models.SecurityLevelConfig
	if err := doc.DataTo(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse security level: %w", err)
	}
	return &cfg, nil
}

// ListSecurityLevels retrieves all security level configs.
func (db *FirestoreDB) ListSecurityLevels(ctx context.Context) ([]models.SecurityLevelConfig, error) {
	iter := db.client.Collection(colSecurityLevels).Documents(ctx)
	defer iter.Stop()

	var configs []models.SecurityLevelConfig
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate security levels: %w", err)
		}

		var cfg models.SecurityLevelConfig
		if err := doc.DataTo(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse security level %s: %w", doc.Ref.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// --- Driver Profile Operations ---

// PutDriverProfile writes a driver profile.
func (db *FirestoreDB) PutDriverProfile(ctx context.Context, p *models.DriverProfile) error {
	_, err := db.client.Collection(colDriverProfiles).Doc(p.DriverID).Set(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to put driver profile: %w", err)
	}
	return nil
}

// GetDriverProfile retrieves a driver profile by driver ID.
func (db *FirestoreDB) GetDriverProfile(ctx context.Context, driverID string) (*models.DriverProfile, error) {
	doc, err := db.client.Collection(colDriverProfiles).Doc(driverID).Get(ctx)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get driver profile: %w", err)
	}

	var p models.DriverProfile
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to parse driver profile: %w", err)
	}
	return &p, nil
}

// --- Report Operations ---

// CreateReport persists a document chain-of-custody report.
func (db *FirestoreDB) CreateReport(ctx context.Context, r *models.DocumentReport) (string, error) {
	ref := db.client.Collection(colReports).NewDoc()
	r.ReportID = ref.ID
	if _, err := ref.Create(ctx, r); err != nil {
		return "", fmt.Errorf("failed to create report: %w", mapError(err))
	}
	return ref.ID, nil
}

// GetReport retrieves a report by ID.
func (db *FirestoreDB) GetReport(ctx context.Context, reportID string) (*models.DocumentReport, error) {
	doc, err := db.client.Collection(colReports).Doc(reportID).Get(ctx)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var r models.DocumentReport
	if err := doc.DataTo(&r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// --- User Operations ---

// CreateUser creates a new user
func (db *FirestoreDB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := db.client.Collection(colUsers).Doc(user.UserID).Set(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *FirestoreDB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	doc, err := db.client.Collection(colUsers).Doc(userID).Get(ctx)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (db *FirestoreDB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	iter := db.client.Collection(colUsers).
		Where("username", "==", username).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

// UpdateUser updates an existing user
func (db *FirestoreDB) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := db.client.Collection(colUsers).Doc(user.UserID).Set(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// StorePasswordHash stores a password hash for a user
func (db *FirestoreDB) StorePasswordHash(ctx context.Context, userID, passwordHash string) error {
	_, err := db.client.Collection(colPasswords).Doc(userID).Set(ctx, map[string]interface{}{
		"user_id":       userID,
		"password_hash": passwordHash,
		"updated_at":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store password hash: %w", err)
	}
	return nil
}

// GetPasswordHash retrieves a password hash for a user
func (db *FirestoreDB) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	doc, err := db.client.Collection(colPasswords).Doc(userID).Get(ctx)
	if err != nil {
		if mapError(err) == ErrNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get password hash: %w", err)
	}

	data := doc.Data()
	if hash, ok := data["password_hash"].(string); ok {
		return hash, nil
	}
	return "", fmt.Errorf("password hash not found for user: %s", userID)
}
