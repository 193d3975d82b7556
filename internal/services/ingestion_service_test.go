package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/database"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Emit(userID, deviceID string, payload interface{}) error {
	args := m.Called(userID, deviceID, payload)
	return args.Error(0)
}

type fixedLocator struct {
	loc   models.Location
	calls []string
}

func (l *fixedLocator) Lookup(_ context.Context, ip string) models.Location {
	l.calls = append(l.calls, ip)
	return l.loc
}

// failingStore wraps a MemoryStore and fails selected operations
type failingStore struct {
	*database.MemoryStore
	findUserErr   error
	findDeviceErr error
	createErr     error
	updateErr     error
}

func (s *failingStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	if s.findUserErr != nil {
		return nil, s.findUserErr
	}
	return s.MemoryStore.FindUser(ctx, username)
}

func (s *failingStore) FindDevice(ctx context.Context, id string) (*models.Device, error) {
	if s.findDeviceErr != nil {
		return nil, s.findDeviceErr
	}
	return s.MemoryStore.FindDevice(ctx, id)
}

func (s *failingStore) CreateReading(ctx context.Context, deviceID string, data models.StructuredReading, ts time.Time) (*models.SensorDataRecord, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.MemoryStore.CreateReading(ctx, deviceID, data, ts)
}

func (s *failingStore) UpdateDevice(ctx context.Context, id string, patch models.DevicePatch) (*models.Device, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.MemoryStore.UpdateDevice(ctx, id, patch)
}

var ingestNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *database.MemoryStore {
	t.Helper()
	store := database.NewMemoryStore()
	err := database.Seed(context.Background(), store,
		[]models.User{
			{ID: "u1", Username: "alice"},
			{ID: "u2", Username: "bob"},
		},
		[]models.Device{
			{ID: "temp-1", UserID: "u1", Name: "greenhouse", Type: string(models.TemperatureSensor),
				Location: &models.Location{City: "Old Town", Country: "Nowhere"}},
			{ID: "soil-1", UserID: "u1", Name: "garden", Type: string(models.Other)},
			{ID: "broken-1", UserID: "u1", Name: "broken", Type: string(models.Camera)},
			{ID: "bob-1", UserID: "u2", Name: "bobs", Type: string(models.SmartPlug)},
		},
	)
	require.NoError(t, err)
	return store
}

func newService(store database.Store, b Broadcaster, l Locator) *IngestionService {
	s := NewIngestionService(store, b, l, zerolog.Nop())
	s.now = func() time.Time { return ingestNow }
	return s
}

func httpIdentity(username, deviceID string) Identity {
	return Identity{Transport: TransportHTTP, Username: username, DeviceID: deviceID, SourceIP: "203.0.113.9"}
}

func TestIngest_HTTPHappyPath(t *testing.T) {
	store := newStore(t)
	b := &mockBroadcaster{}
	b.On("Emit", "u1", "temp-1", mock.AnythingOfType("services.ReadingEvent")).Return(nil).Once()
	berlin := models.Location{Latitude: 52.5, Longitude: 13.4, City: "Berlin", Country: "Germany"}
	loc := &fixedLocator{loc: berlin}

	res, err := newService(store, b, loc).Ingest(context.Background(), httpIdentity("alice", "temp-1"),
		models.Reading{"temperature": 23.5, "humidity": 65.2})
	require.NoError(t, err)

	assert.Equal(t, models.TemperatureSensor, res.DeviceType)
	assert.Equal(t, "celsius", res.Validated["unit"])
	assert.Equal(t, models.Metric{Name: "temperature", Value: 23.5, Unit: "°C"}, res.Structured.Metrics.Primary)
	assert.Equal(t, "humidity", res.Structured.Metrics.Secondary[0].Name)
	assert.Equal(t, ingestNow, res.Record.Timestamp)

	records := store.Readings("temp-1")
	require.Len(t, records, 1)
	assert.Equal(t, res.Record.ID, records[0].ID)

	device, err := store.FindDevice(context.Background(), "temp-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, device.Status)
	assert.Equal(t, ingestNow, *device.LastSeen)
	assert.Equal(t, "203.0.113.9", device.IPAddress)
	assert.Equal(t, berlin, *device.Location)
	assert.Equal(t, "Old Town", device.LastKnownLocation.City)
	assert.Equal(t, []string{"203.0.113.9"}, loc.calls)
	assert.Equal(t, &berlin, res.Location)

	b.AssertExpectations(t)
	event := b.Calls[0].Arguments.Get(2).(ReadingEvent)
	assert.Equal(t, res.Record.ID, event.SensorDataID)
	assert.Equal(t, "greenhouse", event.DeviceName)
}

func TestIngest_MQTTResolvesOwnerFromDevice(t *testing.T) {
	store := newStore(t)
	b := &mockBroadcaster{}
	b.On("Emit", "u1", "temp-1", mock.Anything).Return(nil).Once()
	loc := &fixedLocator{}

	res, err := newService(store, b, loc).Ingest(context.Background(),
		Identity{Transport: TransportMQTT, DeviceName: "greenhouse", DeviceID: "temp-1"},
		models.Reading{"temperature": 19.0, "timestamp": "2024-04-30T08:00:00Z"})
	require.NoError(t, err)

	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC), res.Record.Timestamp)
	assert.Nil(t, res.Location)
	assert.Empty(t, loc.calls, "MQTT readings do not resolve geolocation")

	device, err := store.FindDevice(context.Background(), "temp-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, device.Status)
	assert.Equal(t, "Old Town", device.Location.City)
	b.AssertExpectations(t)
}

func TestIngest_IdentityErrors(t *testing.T) {
	tests := []struct {
		name     string
		identity Identity
		want     error
		code     string
	}{
		{"unknown user", httpIdentity("carol", "temp-1"), ErrUserNotFound, CodeUserNotFound},
		{"unknown device", httpIdentity("alice", "nope"), ErrDeviceNotFound, CodeDeviceNotFound},
		{"foreign device", httpIdentity("alice", "bob-1"), ErrDeviceNotOwnedByUser, CodeDeviceNotOwnedByUser},
		{"mqtt unknown device", Identity{Transport: TransportMQTT, DeviceID: "nope"}, ErrDeviceNotFound, CodeDeviceNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			b := &mockBroadcaster{}

			_, err := newService(store, b, nil).Ingest(context.Background(), tc.identity, models.Reading{"temperature": 1.0})

			var iErr *IngestError
			require.ErrorAs(t, err, &iErr)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.code, iErr.Code)
			assert.NotEmpty(t, iErr.Suggestions)
			assert.Empty(t, store.Readings(""))
			b.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_StoreOutageIsNotNotFound(t *testing.T) {
	outage := errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")
	tests := []struct {
		name     string
		store    func(*database.MemoryStore) *failingStore
		identity Identity
	}{
		{"http device lookup", func(m *database.MemoryStore) *failingStore {
			return &failingStore{MemoryStore: m, findDeviceErr: outage}
		}, httpIdentity("alice", "temp-1")},
		{"http user lookup", func(m *database.MemoryStore) *failingStore {
			return &failingStore{MemoryStore: m, findUserErr: outage}
		}, httpIdentity("alice", "temp-1")},
		{"mqtt device lookup", func(m *database.MemoryStore) *failingStore {
			return &failingStore{MemoryStore: m, findDeviceErr: outage}
		}, Identity{Transport: TransportMQTT, DeviceID: "temp-1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := newStore(t)
			b := &mockBroadcaster{}

			_, err := newService(tc.store(mem), b, nil).Ingest(context.Background(), tc.identity, models.Reading{"temperature": 21.0})

			var iErr *IngestError
			require.ErrorAs(t, err, &iErr)
			assert.Equal(t, CodeIdentityLookup, iErr.Code)
			assert.ErrorIs(t, err, ErrIdentityLookup)
			assert.ErrorIs(t, err, outage)
			assert.NotErrorIs(t, err, ErrDeviceNotFound)
			assert.NotErrorIs(t, err, ErrUserNotFound)
			assert.Empty(t, mem.Readings(""))
			b.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_MQTTMissingOwner(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.UpsertDevice(context.Background(),
		&models.Device{ID: "orphan", UserID: "ghost", Type: string(models.Camera)}))

	_, err := newService(store, nil, nil).Ingest(context.Background(),
		Identity{Transport: TransportMQTT, DeviceID: "orphan"}, models.Reading{"status": "idle"})
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestIngest_DeviceTypeInvalid(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.UpsertDevice(context.Background(),
		&models.Device{ID: "toaster", UserID: "u1", Type: "TOASTER"}))

	_, err := newService(store, nil, nil).Ingest(context.Background(), httpIdentity("alice", "toaster"), models.Reading{})
	var iErr *IngestError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, CodeDeviceTypeInvalid, iErr.Code)
	assert.ErrorIs(t, err, ErrDeviceTypeInvalid)
}

func TestIngest_ValidationError(t *testing.T) {
	store := newStore(t)

	_, err := newService(store, nil, nil).Ingest(context.Background(), httpIdentity("alice", "temp-1"),
		models.Reading{"temperature": 2000.0})
	var iErr *IngestError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, CodeSensorDataValidation, iErr.Code)
	assert.ErrorIs(t, err, ErrSensorDataValidation)
	assert.Contains(t, iErr.Suggestions[0], "temperature")

	details := iErr.Details.(map[string]interface{})
	assert.Equal(t, []string{"temperature"}, details["requiredFields"])
	assert.Empty(t, store.Readings(""))
}

func TestIngest_GenericValidationAddsHint(t *testing.T) {
	store := newStore(t)

	_, err := newService(store, nil, nil).Ingest(context.Background(), httpIdentity("alice", "soil-1"),
		models.Reading{"sensorType": "soil", "primaryMetric": map[string]interface{}{"name": "moisture", "value": 45.2, "unit": "percent"}, "extra": 1.0})
	var iErr *IngestError
	require.ErrorAs(t, err, &iErr)
	assert.Len(t, iErr.Suggestions, 3)
	assert.Contains(t, iErr.Suggestions[2], "Generic sensors")
}

func TestIngest_SaveErrorSkipsFanOut(t *testing.T) {
	store := &failingStore{MemoryStore: newStore(t), createErr: errors.New("disk full")}
	b := &mockBroadcaster{}

	_, err := newService(store, b, nil).Ingest(context.Background(), httpIdentity("alice", "temp-1"),
		models.Reading{"temperature": 20.0})
	var iErr *IngestError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, CodeSensorDataSave, iErr.Code)
	assert.Contains(t, err.Error(), "disk full")
	b.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_BestEffortSideEffects(t *testing.T) {
	store := &failingStore{MemoryStore: newStore(t), updateErr: errors.New("timeout")}
	b := &mockBroadcaster{}
	b.On("Emit", "u1", "temp-1", mock.Anything).Return(errors.New("hub stopped")).Once()

	res, err := newService(store, b, &fixedLocator{}).Ingest(context.Background(), httpIdentity("alice", "temp-1"),
		models.Reading{"temperature": 20.0})
	require.NoError(t, err)
	assert.NotNil(t, res.Record)
	assert.Len(t, store.Readings("temp-1"), 1)
	b.AssertExpectations(t)
}

func TestIngest_GenericSoilReading(t *testing.T) {
	store := newStore(t)

	res, err := newService(store, nil, nil).Ingest(context.Background(), httpIdentity("alice", "soil-1"),
		models.Reading{"sensorType": "soil", "primaryMetric": map[string]interface{}{"name": "moisture", "value": 45.2, "unit": "percent"}})
	require.NoError(t, err)
	assert.Equal(t, "gauge", res.Structured.Template.ChartType)
	assert.Equal(t, "#8B4513", res.Structured.Template.Color)
	assert.Equal(t, "leaf", res.Structured.Template.Icon)
}
