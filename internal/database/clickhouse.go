package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// ClickHouseStore keeps readings in a MergeTree table and users/devices in
// ReplacingMergeTree tables, where every update inserts a new row version.
type ClickHouseStore struct {
	conn   driver.Conn
	logger zerolog.Logger
}

// NewClickHouseStore creates a new ClickHouse connection and initializes the schema
func NewClickHouseStore(ctx context.Context, addr, database, username, password string, logger zerolog.Logger) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &ClickHouseStore{
		conn:   conn,
		logger: logger.With().Str("component", "clickhouse").Logger(),
	}
	s.logger.Info().Str("addr", addr).Msg("connected to ClickHouse")

	if err := s.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// InitSchema creates the necessary tables if they don't exist
func (s *ClickHouseStore) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := s.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	s.logger.Info().Msg("database schema initialized")
	return nil
}

func (s *ClickHouseStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	return s.queryUser(ctx, `
		SELECT id, username, email
		FROM users FINAL
		WHERE username = ?
		LIMIT 1
	`, username)
}

func (s *ClickHouseStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.queryUser(ctx, `
		SELECT id, username, email
		FROM users FINAL
		WHERE id = ?
		LIMIT 1
	`, id)
}

func (s *ClickHouseStore) queryUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	if err := s.conn.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *ClickHouseStore) FindDevice(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, user_id, name, type, status, last_seen, ip_address, location, last_known_location, updated_at
		FROM devices FINAL
		WHERE id = ?
		LIMIT 1
	`

	var (
		d                   models.Device
		status              string
		location, lastKnown string
	)
	err := s.conn.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Type,
		&status,
		&d.LastSeen,
		&d.IPAddress,
		&location,
		&lastKnown,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	d.Status = models.DeviceStatus(status)
	if d.Location, err = decodeLocation(location); err != nil {
		return nil, err
	}
	if d.LastKnownLocation, err = decodeLocation(lastKnown); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateReading inserts one sensor_data row. The structured reading is stored as JSON.
func (s *ClickHouseStore) CreateReading(ctx context.Context, deviceID string, data models.StructuredReading, timestamp time.Time) (*models.SensorDataRecord, error) {
	rec := newRecord(deviceID, data, timestamp)

	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sensor data: %w", err)
	}

	query := `
		INSERT INTO sensor_data (id, device_id, timestamp, data, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
		rec.ID,
		rec.DeviceID,
		rec.Timestamp,
		string(payload),
		rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sensor data: %w", err)
	}
	return rec, nil
}

// UpdateDevice reads the current device version, applies the patch and
// inserts the result as a newer version.
func (s *ClickHouseStore) UpdateDevice(ctx context.Context, id string, patch models.DevicePatch) (*models.Device, error) {
	d, err := s.FindDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(d)
	d.UpdatedAt = time.Now().UTC()
	if err := s.UpsertDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// UpsertUser inserts or replaces a user
func (s *ClickHouseStore) UpsertUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, email, updated_at)
		VALUES (?, ?, ?, ?)
	`
	if err := s.conn.Exec(ctx, query, u.ID, u.Username, u.Email, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpsertDevice inserts or replaces a device
func (s *ClickHouseStore) UpsertDevice(ctx context.Context, d *models.Device) error {
	location, err := encodeLocation(d.Location)
	if err != nil {
		return err
	}
	lastKnown, err := encodeLocation(d.LastKnownLocation)
	if err != nil {
		return err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO devices (id, user_id, name, type, status, last_seen, ip_address, location, last_known_location, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.conn.Exec(ctx, query,
		d.ID,
		d.UserID,
		d.Name,
		d.Type,
		string(d.Status),
		d.LastSeen,
		d.IPAddress,
		location,
		lastKnown,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (s *ClickHouseStore) Close() error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		s.logger.Info().Msg("ClickHouse connection closed")
	}
	return nil
}

func encodeLocation(loc *models.Location) (string, error) {
	if loc == nil {
		return "", nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return "", fmt.Errorf("failed to encode location: %w", err)
	}
	return string(b), nil
}

func decodeLocation(s string) (*models.Location, error) {
	if s == "" {
		return nil, nil
	}
	var loc models.Location
	if err := json.Unmarshal([]byte(s), &loc); err != nil {
		return nil, fmt.Errorf("failed to decode location: %w", err)
	}
	return &loc, nil
}
