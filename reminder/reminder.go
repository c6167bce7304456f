// Package reminder implements durable delayed reminders.
//
// A reminder is persisted before scheduling is acknowledged and removed only
// after delivery succeeds, giving at-least-once delivery across restarts.
package reminder

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Reminder is a pending reminder.
type Reminder struct {
	ID      string
	Owner   string
	Message string
	Due     time.Time
	// Attempts counts failed delivery attempts so far.
	Attempts int
}

// Store records pending reminders.
type Store struct {
	db *sqlitex.Pool
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record reminders.
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
			return fmt.Errorf("couldn't get conn to init reminders: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize reminders schema: %w", err)
	}
	return nil
}

// Open initializes the schema and returns the reminder store.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Schedule persists a reminder for owner due at due and returns its id.
// The reminder is durable once Schedule returns.
func (s *Store) Schedule(ctx context.Context, owner, message string, due time.Time) (string, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return "", fmt.Errorf("couldn't get conn to schedule reminder: %w", err)
	}
	id := uuid.NewString()
	err = sqlitex.Execute(conn, `INSERT INTO reminders (id, owner, message, due, created) VALUES (:id, :owner, :message, :due, :created)`, &sqlitex.ExecOptions{
		Named: map[string]any{
			":id":      id,
			":owner":   owner,
			":message": message,
			":due":     due.UnixMilli(),
			":created": time.Now().UnixMilli(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("couldn't schedule reminder: %w", err)
	}
	return id, nil
}

// Due returns all reminders with deadlines at or before now, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Reminder, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to collect due reminders: %w", err)
	}
	var r []Reminder
	err = sqlitex.Execute(conn, `SELECT id, owner, message, due, attempts FROM reminders WHERE due <= :now ORDER BY due`, &sqlitex.ExecOptions{
		Named: map[string]any{":now": now.UnixMilli()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = append(r, Reminder{
				ID:       stmt.ColumnText(0),
				Owner:    stmt.ColumnText(1),
				Message:  stmt.ColumnText(2),
				Due:      time.UnixMilli(stmt.ColumnInt64(3)),
				Attempts: stmt.ColumnInt(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't collect due reminders: %w", err)
	}
	return r, nil
}

// Delivered removes a reminder after confirmed delivery.
func (s *Store) Delivered(ctx context.Context, id string) error {
	return s.remove(ctx, id, "delivered")
}

// Abandon removes a reminder that exhausted its delivery attempts.
func (s *Store) Abandon(ctx context.Context, id string) error {
	return s.remove(ctx, id, "abandoned")
}

func (s *Store) remove(ctx context.Context, id, why string) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to remove %s reminder: %w", why, err)
	}
	err = sqlitex.Execute(conn, `DELETE FROM reminders WHERE id = :id`, &sqlitex.ExecOptions{
		Named: map[string]any{":id": id},
	})
	if err != nil {
		return fmt.Errorf("couldn't remove %s reminder: %w", why, err)
	}
	return nil
}

// Failed records a failed delivery attempt and returns the new attempt count.
func (s *Store) Failed(ctx context.Context, id string) (int, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get conn to record failed delivery: %w", err)
	}
	var n int
	err = sqlitex.Execute(conn, `UPDATE reminders SET attempts = attempts + 1 WHERE id = :id RETURNING attempts`, &sqlitex.ExecOptions{
		Named: map[string]any{":id": id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("couldn't record failed delivery: %w", err)
	}
	return n, nil
}
