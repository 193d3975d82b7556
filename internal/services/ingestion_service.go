package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/database"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/schema"
	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/shaper"
)

// Broadcaster fans a reading out to the owning user's and the device's subscribers
type Broadcaster interface {
	Emit(userID, deviceID string, payload interface{}) error
}

// Locator resolves a source IP to a location. It must not block longer than
// its own timeout and falls back to a default location on failure.
type Locator interface {
	Lookup(ctx context.Context, ip string) models.Location
}

// Transport names the adapter a reading arrived through
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportMQTT Transport = "mqtt"
)

// Identity is what a transport knows about the sender of a reading.
// HTTP supplies Username and DeviceID from the route, MQTT supplies
// DeviceName and DeviceID from the topic.
type Identity struct {
	Transport  Transport
	Username   string
	DeviceID   string
	DeviceName string
	SourceIP   string
}

// Result describes a successfully ingested reading
type Result struct {
	User       *models.User
	Device     *models.Device
	DeviceType models.DeviceType
	Validated  models.Reading
	Structured models.StructuredReading
	Record     *models.SensorDataRecord
	// Location is the resolved source location; HTTP only
	Location *models.Location
}

// ReadingEvent is the payload fanned out to real-time subscribers
type ReadingEvent struct {
	SensorDataID string                   `json:"sensorDataId"`
	DeviceID     string                   `json:"deviceId"`
	DeviceName   string                   `json:"deviceName"`
	DeviceType   models.DeviceType        `json:"deviceType"`
	Data         models.StructuredReading `json:"data"`
	Timestamp    time.Time                `json:"timestamp"`
}

// IngestionService runs the ingestion sequence shared by the HTTP and MQTT
// adapters: identity resolution, validation, shaping, persistence, liveness
// update and real-time fan-out.
type IngestionService struct {
	store       database.Store
	broadcaster Broadcaster
	locator     Locator
	logger      zerolog.Logger
	now         func() time.Time
}

// NewIngestionService creates the dispatcher. broadcaster and locator may be nil.
func NewIngestionService(store database.Store, broadcaster Broadcaster, locator Locator, logger zerolog.Logger) *IngestionService {
	return &IngestionService{
		store:       store,
		broadcaster: broadcaster,
		locator:     locator,
		logger:      logger.With().Str("component", "ingestion").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Ingest processes one raw reading. Identity, validation and persistence
// failures are returned as *IngestError. Liveness and fan-out failures are
// logged only.
func (s *IngestionService) Ingest(ctx context.Context, id Identity, raw models.Reading) (*Result, error) {
	user, device, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().
		Str("transport", string(id.Transport)).
		Str("device_id", device.ID).
		Str("username", user.Username).
		Logger()

	deviceType, err := models.ParseDeviceType(device.Type)
	if err != nil {
		return nil, deviceTypeInvalid(device.Type, err)
	}

	validated, err := schema.Validate(deviceType, raw)
	if err != nil {
		var vErr *schema.ValidationError
		if errors.As(err, &vErr) {
			return nil, validationFailed(deviceType, vErr)
		}
		return nil, deviceTypeInvalid(device.Type, err)
	}

	now := s.now()
	structured := shaper.Shape(deviceType, validated, now)

	record, err := s.store.CreateReading(ctx, device.ID, structured, structured.Timestamp)
	if err != nil {
		return nil, saveFailed(device.ID, err)
	}
	logger.Debug().Str("sensor_data_id", record.ID).Msg("sensor data saved")

	result := &Result{
		User:       user,
		Device:     device,
		DeviceType: deviceType,
		Validated:  validated,
		Structured: structured,
		Record:     record,
	}

	// Best effort - don't fail if the liveness update fails
	patch := s.livenessPatch(ctx, id, device, now, result)
	if updated, err := s.store.UpdateDevice(ctx, device.ID, patch); err != nil {
		logger.Warn().Err(err).Msg("failed to update device liveness")
	} else {
		result.Device = updated
	}

	if err := s.emit(user.ID, result); err != nil {
		logger.Warn().Err(err).Msg("failed to emit sensor data")
	}

	return result, nil
}

// resolve finds the user and device for an identity. HTTP readings are
// addressed by username and must target a device the user owns. MQTT readings
// are addressed by device and resolve the owner from it.
func (s *IngestionService) resolve(ctx context.Context, id Identity) (*models.User, *models.Device, error) {
	if id.Transport == TransportMQTT {
		device, err := s.store.FindDevice(ctx, id.DeviceID)
		if err != nil {
			return nil, nil, deviceLookupError(id.DeviceID, err)
		}
		user, err := s.store.FindUserByID(ctx, device.UserID)
		if err != nil {
			return nil, nil, userLookupError(device.UserID, err)
		}
		if id.DeviceName != "" && id.DeviceName != device.Name {
			s.logger.Debug().
				Str("device_id", device.ID).
				Str("topic_name", id.DeviceName).
				Str("device_name", device.Name).
				Msg("topic device name differs from registered name")
		}
		return user, device, nil
	}

	user, err := s.store.FindUser(ctx, id.Username)
	if err != nil {
		return nil, nil, userLookupError(id.Username, err)
	}
	device, err := s.store.FindDevice(ctx, id.DeviceID)
	if err != nil {
		return nil, nil, deviceLookupError(id.DeviceID, err)
	}
	if device.UserID != user.ID {
		return nil, nil, deviceNotOwned(device.ID, user.Username)
	}
	return user, device, nil
}

func userLookupError(username string, err error) *IngestError {
	if errors.Is(err, database.ErrNotFound) {
		return userNotFound(username, err)
	}
	return lookupFailed("username", username, err)
}

func deviceLookupError(deviceID string, err error) *IngestError {
	if errors.Is(err, database.ErrNotFound) {
		return deviceNotFound(deviceID, err)
	}
	return lookupFailed("deviceId", deviceID, err)
}

// livenessPatch marks the device online. HTTP readings also rotate the
// device location: the current one becomes last-known and the resolved
// source location becomes current.
func (s *IngestionService) livenessPatch(ctx context.Context, id Identity, device *models.Device, now time.Time, result *Result) models.DevicePatch {
	online := models.StatusOnline
	patch := models.DevicePatch{
		Status:   &online,
		LastSeen: &now,
	}
	if id.Transport != TransportHTTP {
		return patch
	}

	ip := id.SourceIP
	patch.IPAddress = &ip
	if s.locator != nil {
		loc := s.locator.Lookup(ctx, ip)
		patch.Location = &loc
		result.Location = &loc
		if device.Location != nil {
			prev := *device.Location
			patch.LastKnownLocation = &prev
		}
	}
	return patch
}

func (s *IngestionService) emit(userID string, result *Result) error {
	if s.broadcaster == nil {
		return nil
	}
	event := ReadingEvent{
		SensorDataID: result.Record.ID,
		DeviceID:     result.Device.ID,
		DeviceName:   result.Device.Name,
		DeviceType:   result.DeviceType,
		Data:         result.Structured,
		Timestamp:    result.Record.Timestamp,
	}
	if err := s.broadcaster.Emit(userID, result.Device.ID, event); err != nil {
		return fmt.Errorf("%w: %v", ErrSocketEmission, err)
	}
	return nil
}
