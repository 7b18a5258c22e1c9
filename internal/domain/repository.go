package domain

import "time"

// StoreConfig selects and configures the list store behind every handle.
type StoreConfig struct {
	// Driver is "rest" for a remote list API, or "sqlite"/"postgres"
	// for the embedded list store.
	Driver string

	// REST specific
	Token       string
	HTTPTimeout time.Duration

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
