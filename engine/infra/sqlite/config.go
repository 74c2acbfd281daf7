package sqlite

import "time"

// Config captures SQLite store configuration derived from application settings.
type Config struct {
	// Path is the database file or ":memory:".
	Path string

	MaxOpenConns int

	// BusyTimeout configures PRAGMA busy_timeout.
	BusyTimeout time.Duration
}
