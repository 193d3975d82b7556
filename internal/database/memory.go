package database

import (
	"context"
	"sync"
	"time"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// MemoryStore is a process-local Store used for tests and the memory driver
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	devices  map[string]models.Device
	readings []*models.SensorDataRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]models.User),
		devices: make(map[string]models.Device),
	}
}

func (s *MemoryStore) UpsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) UpsertDevice(_ context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = copyDevice(*d)
	return nil
}

func (s *MemoryStore) FindUser(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) FindDevice(_ context.Context, id string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	d = copyDevice(d)
	return &d, nil
}

func (s *MemoryStore) CreateReading(_ context.Context, deviceID string, data models.StructuredReading, timestamp time.Time) (*models.SensorDataRecord, error) {
	rec := newRecord(deviceID, data, timestamp)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, rec)
	return rec, nil
}

func (s *MemoryStore) UpdateDevice(_ context.Context, id string, patch models.DevicePatch) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(&d)
	d.UpdatedAt = time.Now().UTC()
	s.devices[id] = d
	out := copyDevice(d)
	return &out, nil
}

// Readings returns a copy of the stored records for a device, oldest first.
// An empty deviceID returns every record.
func (s *MemoryStore) Readings(deviceID string) []*models.SensorDataRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SensorDataRecord
	for _, r := range s.readings {
		if deviceID == "" || r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) Close() error { return nil }

// copyDevice detaches pointer fields so callers cannot mutate stored state
func copyDevice(d models.Device) models.Device {
	if d.LastSeen != nil {
		t := *d.LastSeen
		d.LastSeen = &t
	}
	if d.Location != nil {
		loc := *d.Location
		d.Location = &loc
	}
	if d.LastKnownLocation != nil {
		loc := *d.LastKnownLocation
		d.LastKnownLocation = &loc
	}
	return d
}
