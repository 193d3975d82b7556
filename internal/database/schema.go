package database

// SQL schemas for all ClickHouse tables

const (
	// UsersTableSQL creates the users table. Rows are versioned by updated_at.
	UsersTableSQL = `
		CREATE TABLE IF NOT EXISTS users (
			id String,
			username String,
			email String,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id
	`

	// DevicesTableSQL creates the devices table. Locations are stored as JSON.
	DevicesTableSQL = `
		CREATE TABLE IF NOT EXISTS devices (
			id String,
			user_id String,
			name String,
			type String,
			status String,
			last_seen Nullable(DateTime64(3)),
			ip_address String,
			location String,
			last_known_location String,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id
	`

	// SensorDataTableSQL creates the sensor_data table
	SensorDataTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_data (
			id String,
			device_id String,
			timestamp DateTime64(3),
			data String,
			created_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		UsersTableSQL,
		DevicesTableSQL,
		SensorDataTableSQL,
	}
}
