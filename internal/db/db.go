// Package db opens the sqlite database behind the sync journal. The driver
// is picked at build time: ncruces/go-sqlite3 by default, mattn/go-sqlite3
// with the sqlite3_cgo tag.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/docsync/internal/utils"
)

// Memory opens a private in-memory database.
const Memory = ":memory:"

const basePragmas = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type options struct {
	path        string
	busyTimeout time.Duration
	maxConns    int
}

type Option func(*options)

// WithPath stores the database at path. Parent directories are created.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithBusyTimeout bounds how long a writer waits for a competing lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithMaxConns caps open connections. An in-memory database is always
// limited to one so every query sees the same data.
func WithMaxConns(n int) Option {
	return func(o *options) {
		o.maxConns = n
	}
}

// Open connects, applies pragmas and runs schema if given.
func Open(schema string, opts ...Option) (*sqlx.DB, error) {
	o := &options{
		path:        Memory,
		busyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	dsn := Memory
	if o.path != Memory {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", o.path)
	}

	slog.Debug("db open", "driver", driverID, "path", o.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	switch {
	case o.path == Memory:
		conn.SetMaxOpenConns(1)
	case o.maxConns > 0:
		conn.SetMaxOpenConns(o.maxConns)
	}

	pragmas := basePragmas + fmt.Sprintf("PRAGMA busy_timeout=%d;\n", o.busyTimeout.Milliseconds())
	if _, err := conn.Exec(pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if schema != "" {
		if _, err := conn.Exec(schema); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return conn, nil
}
