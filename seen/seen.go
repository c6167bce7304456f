// Package seen tracks when users were last active and who is away.
package seen

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store records user activity.
type Store struct {
	db *sqlitex.Pool
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record user activity.
func Init[DB *sqlitex.Pool | *sqlite.Conn](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		defer db.Put(conn)
		if err != nil {
			return fmt.Errorf("couldn't get conn to init seen: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize seen schema: %w", err)
	}
	return nil
}

// Open initializes the schema and returns the activity store.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Touch records that username was active at t.
func (s *Store) Touch(ctx context.Context, username string, t time.Time) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to touch user: %w", err)
	}
	err = sqlitex.Execute(conn, `INSERT INTO last_seen (username, at) VALUES (:username, :at)
		ON CONFLICT (username) DO UPDATE SET at = excluded.at`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username), ":at": t.UnixMilli()},
	})
	if err != nil {
		return fmt.Errorf("couldn't touch user: %w", err)
	}
	return nil
}

// LastSeen returns the last activity time for username. The second result
// is false if the user has never been seen.
func (s *Store) LastSeen(ctx context.Context, username string) (time.Time, bool, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("couldn't get conn to read last seen: %w", err)
	}
	var at time.Time
	found := false
	err = sqlitex.Execute(conn, `SELECT at FROM last_seen WHERE username = :username`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			at = time.UnixMilli(stmt.ColumnInt64(0))
			found = true
			return nil
		},
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("couldn't read last seen: %w", err)
	}
	return at, found, nil
}

// SetAFK marks username as away with a reason.
func (s *Store) SetAFK(ctx context.Context, username, reason string, since time.Time) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to set afk: %w", err)
	}
	err = sqlitex.Execute(conn, `INSERT INTO afk (username, reason, since) VALUES (:username, :reason, :since)
		ON CONFLICT (username) DO UPDATE SET reason = excluded.reason, since = excluded.since`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username), ":reason": reason, ":since": since.UnixMilli()},
	})
	if err != nil {
		return fmt.Errorf("couldn't set afk: %w", err)
	}
	return nil
}

// ClearAFK removes username's away status. It reports whether the user was
// away.
func (s *Store) ClearAFK(ctx context.Context, username string) (bool, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return false, fmt.Errorf("couldn't get conn to clear afk: %w", err)
	}
	err = sqlitex.Execute(conn, `DELETE FROM afk WHERE username = :username`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username)},
	})
	if err != nil {
		return false, fmt.Errorf("couldn't clear afk: %w", err)
	}
	return conn.Changes() > 0, nil
}

// AFK returns username's away reason and since when, if they are away.
func (s *Store) AFK(ctx context.Context, username string) (string, time.Time, bool, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("couldn't get conn to read afk: %w", err)
	}
	var reason string
	var since time.Time
	found := false
	err = sqlitex.Execute(conn, `SELECT reason, since FROM afk WHERE username = :username`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			reason = stmt.ColumnText(0)
			since = time.UnixMilli(stmt.ColumnInt64(1))
			found = true
			return nil
		},
	})
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("couldn't read afk: %w", err)
	}
	return reason, since, found, nil
}
