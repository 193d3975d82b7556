// Package database persists users, devices and ingested sensor readings.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// ErrNotFound is returned when a user or device does not exist
var ErrNotFound = errors.New("not found")

// Store is the persistence contract used by the ingestion pipeline
type Store interface {
	FindUser(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindDevice(ctx context.Context, id string) (*models.Device, error)
	// CreateReading stores a new immutable record and returns it with its id set
	CreateReading(ctx context.Context, deviceID string, data models.StructuredReading, timestamp time.Time) (*models.SensorDataRecord, error)
	// UpdateDevice applies a partial patch and returns the updated device
	UpdateDevice(ctx context.Context, id string, patch models.DevicePatch) (*models.Device, error)
	Close() error
}

func newRecord(deviceID string, data models.StructuredReading, timestamp time.Time) *models.SensorDataRecord {
	return &models.SensorDataRecord{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
}
