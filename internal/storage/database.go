package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when an update or delete targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write would store a second copy of a card or question in a topic.
var ErrDuplicate = errors.New("already exists")

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
// path is a file path; foreign keys and a busy timeout are enabled on every connection.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection keeps the pragmas and
	// avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{conn: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	for _, m := range migrations {
		var n int
		if err := db.QueryRow(m.check).Scan(&n); err != nil {
			return fmt.Errorf("failed to check migration: %w", err)
		}
		if n > 0 {
			continue
		}
		for _, stmt := range m.apply {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to migrate schema: %w", err)
			}
		}
	}
	if _, err := db.Exec(indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// dsn turns a file path into a sqlite DSN. Query parameters already on the
// path are kept and the pragmas are always added.
func dsn(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

// isUniqueViolation reports whether err is a sqlite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// nullableID stores a zero id as NULL.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is still usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) stamp() int64 {
	return db.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
