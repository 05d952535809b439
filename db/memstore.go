package db

import (
	"context"
	"sort"
	"sync"

	"ombra/models"

	"github.com/google/uuid"
)

// MemStore is an in-memory implementation of the store interfaces consumed
// by the services. It backs the test suites and local development without a
// Firestore project. Semantics mirror FirestoreDB: per-mission mutations are
// serialized, logs are append-only, code reservations are unique per
// namespace.
type MemStore struct {
	mu       sync.RWMutex
	missions map[string]models.Mission
	logs     []models.MissionLog
	codes    map[string]bool
	levels   map[models.SecurityLevel]models.SecurityLevelConfig
	drivers  map[string]models.DriverProfile
	reports  map[string]models.DocumentReport

	users     map[string]models.User
	passwords map[string]string

	watchers      map[string][]chan models.Mission
	queryWatchers []*missionQueryWatcher
}

// missionQueryWatcher subscribes to a client's or driver's mission list.
type missionQueryWatcher struct {
	field string // "client_id" or "driver_id"
	value string
	ch    chan []models.Mission
}

func (w *missionQueryWatcher) matches(m *models.Mission) bool {
	if w.field == "client_id" {
		return m.ClientID == w.value
	}
	return m.DriverID == w.value
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		missions:  make(map[string]models.Mission),
		codes:     make(map[string]bool),
		levels:    make(map[models.SecurityLevel]models.SecurityLevelConfig),
		drivers:   make(map[string]models.DriverProfile),
		reports:   make(map[string]models.DocumentReport),
		users:     make(map[string]models.User),
		passwords: make(map[string]string),
		watchers:  make(map[string][]chan models.Mission),
	}
}

// --- Code Reservations ---

func (s *MemStore) ReserveCode(ctx context.Context, namespace, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := namespace + ":" + code
	if s.codes[key] {
		return ErrAlreadyExists
	}
	s.codes[key] = true
	return nil
}

// --- Mission Operations ---

func (s *MemStore) CreateMission(ctx context.Context, m *models.Mission, buildLog func(missionID string) *models.MissionLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.MissionID = uuid.NewString()
	logEntry := buildLog(m.MissionID)
	s.missions[m.MissionID] = *m
	s.logs = append(s.logs, *logEntry)
	s.notifyQueryWatchersLocked(m)
	return m.MissionID, nil
}

func (s *MemStore) GetMission(ctx context.Context, missionID string) (*models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.missions[missionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemStore) MutateMission(ctx context.Context, missionID string, mutate func(*models.Mission) (*models.MissionLog, error)) error {
	s.mu.Lock()

	m, ok := s.missions[missionID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	logEntry, err := mutate(&m)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.missions[missionID] = m
	s.logs = append(s.logs, *logEntry)
	s.notifyQueryWatchersLocked(&m)
	watchers := append([]chan models.Mission(nil), s.watchers[missionID]...)
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- m:
		default:
		}
	}
	return nil
}

func (s *MemStore) MissionsByClient(ctx context.Context, clientID string) ([]models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Mission
	for _, m := range s.missions {
		if m.ClientID == clientID {
			out = append(out, m)
		}
	}
	sortMissionsDesc(out)
	return out, nil
}

func (s *MemStore) MissionsByDriver(ctx context.Context, driverID string) ([]models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Mission
	for _, m := range s.missions {
		if m.DriverID == driverID {
			out = append(out, m)
		}
	}
	sortMissionsDesc(out)
	return out, nil
}

func sortMissionsDesc(missions []models.Mission) {
	sort.Slice(missions, func(i, j int) bool {
		return missions[i].RequestedAt.After(missions[j].RequestedAt)
	})
}

func (s *MemStore) WatchMission(ctx context.Context, missionID string) (<-chan models.Mission, error) {
	ch := make(chan models.Mission, 8)

	s.mu.Lock()
	s.watchers[missionID] = append(s.watchers[missionID], ch)
	if m, ok := s.missions[missionID]; ok {
		ch <- m
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		ws := s.watchers[missionID]
		for i, w := range ws {
			if w == ch {
				s.watchers[missionID] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// WatchMissionsByClient streams a client's full mission list on every
// change, like a Firestore query snapshot listener.
func (s *MemStore) WatchMissionsByClient(ctx context.Context, clientID string) (<-chan []models.Mission, error) {
	return s.watchMissionQuery(ctx, "client_id", clientID)
}

// WatchMissionsByDriver streams a driver's full mission list on every
// change.
func (s *MemStore) WatchMissionsByDriver(ctx context.Context, driverID string) (<-chan []models.Mission, error) {
	return s.watchMissionQuery(ctx, "driver_id", driverID)
}

func (s *MemStore) watchMissionQuery(ctx context.Context, field, value string) (<-chan []models.Mission, error) {
	w := &missionQueryWatcher{field: field, value: value, ch: make(chan []models.Mission, 8)}

	s.mu.Lock()
	s.queryWatchers = append(s.queryWatchers, w)
	w.ch <- s.missionListLocked(field, value)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, qw := range s.queryWatchers {
			if qw == w {
				s.queryWatchers = append(s.queryWatchers[:i], s.queryWatchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(w.ch)
	}()
	return w.ch, nil
}

func (s *MemStore) missionListLocked(field, value string) []models.Mission {
	var out []models.Mission
	for _, m := range s.missions {
		if field == "client_id" && m.ClientID == value {
			out = append(out, m)
		}
		if field == "driver_id" && m.DriverID == value {
			out = append(out, m)
		}
	}
	sortMissionsDesc(out)
	return out
}

func (s *MemStore) notifyQueryWatchersLocked(m *models.Mission) {
	for _, w := range s.queryWatchers {
		if !w.matches(m) {
			continue
		}
		select {
		case w.ch <- s.missionListLocked(w.field, w.value):
		default:
		}
	}
}

// --- Mission Log Operations ---

func (s *MemStore) AppendMissionLog(ctx context.Context, logEntry *models.MissionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, *logEntry)
	return nil
}

func (s *MemStore) MissionLogs(ctx context.Context, missionID string) ([]models.MissionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MissionLog
	for _, l := range s.logs {
		if l.MissionID == missionID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// --- Security Level Operations ---

func (s *MemStore) PutSecurityLevel(ctx context.Context, cfg *models.SecurityLevelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[cfg.Level] = *cfg
	return nil
}

func (s *MemStore) GetSecurityLevel(ctx context.Context, level models.SecurityLevel) (*models.SecurityLevelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.levels[level]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *MemStore) ListSecurityLevels(ctx context.Context) ([]models.SecurityLevelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SecurityLevelConfig, 0, len(s.levels))
	for _, cfg := range s.levels {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		return models.SecurityLevelRank(out[i].Level) < models.SecurityLevelRank(out[j].Level)
	})
	return out, nil
}

// --- Driver Profile Operations ---

func (s *MemStore) PutDriverProfile(ctx context.Context, p *models.DriverProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drivers[p.DriverID] = *p
	return nil
}

func (s *MemStore) GetDriverProfile(ctx context.Context, driverID string) (*models.DriverProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.drivers[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// --- Report Operations ---

func (s *MemStore) CreateReport(ctx context.Context, r *models.DocumentReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ReportID = uuid.NewString()
	s.reports[r.ReportID] = *r
	return r.ReportID, nil
}

func (s *MemStore) GetReport(ctx context.Context, reportID string) (*models.DocumentReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[reportID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// --- User Operations ---

func (s *MemStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.UserID] = *user
	return nil
}

func (s *MemStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.UserID] = *user
	return nil
}

func (s *MemStore) StorePasswordHash(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passwords[userID] = passwordHash
	return nil
}

func (s *MemStore) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.passwords[userID]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}
