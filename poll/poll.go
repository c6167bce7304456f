// Package poll implements multiple-choice polls with durable votes.
package poll

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var (
	// ErrNotFound indicates an unknown poll id.
	ErrNotFound = errors.New("no such poll")
	// ErrTooFewOptions indicates a poll was created with fewer than two options.
	ErrTooFewOptions = errors.New("a poll needs at least two options")
	// ErrBadOption indicates a vote for an option the poll doesn't have.
	ErrBadOption = errors.New("no such option")
)

// Store records polls and votes.
type Store struct {
	db *sqlitex.Pool
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record polls.
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
			return fmt.Errorf("couldn't get conn to init polls: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize polls schema: %w", err)
	}
	return nil
}

// Open initializes the schema and returns the poll store.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Result is the vote count for one option, in original option order.
type Result struct {
	Label string
	Votes int
}

// Create opens a new poll and returns its id.
func (s *Store) Create(ctx context.Context, question string, options []string) (int64, error) {
	if len(options) < 2 {
		return 0, ErrTooFewOptions
	}
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get conn to create poll: %w", err)
	}
	defer sqlitex.Save(conn)(&err)
	err = sqlitex.Execute(conn, `INSERT INTO polls (question, created) VALUES (:question, :created)`, &sqlitex.ExecOptions{
		Named: map[string]any{":question": question, ":created": time.Now().UnixMilli()},
	})
	if err != nil {
		return 0, fmt.Errorf("couldn't create poll: %w", err)
	}
	id := conn.LastInsertRowID()
	for i, label := range options {
		err = sqlitex.Execute(conn, `INSERT INTO poll_options (poll, idx, label) VALUES (:poll, :idx, :label)`, &sqlitex.ExecOptions{
			Named: map[string]any{":poll": id, ":idx": i, ":label": label},
		})
		if err != nil {
			return 0, fmt.Errorf("couldn't add poll option: %w", err)
		}
	}
	return id, nil
}

// Question returns the question text of a poll.
func (s *Store) Question(ctx context.Context, id int64) (string, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return "", fmt.Errorf("couldn't get conn to read poll: %w", err)
	}
	var q string
	found := false
	err = sqlitex.Execute(conn, `SELECT question FROM polls WHERE id = :id`, &sqlitex.ExecOptions{
		Named: map[string]any{":id": id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			q = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("couldn't read poll %d: %w", id, err)
	}
	if !found {
		return "", fmt.Errorf("poll %d: %w", id, ErrNotFound)
	}
	return q, nil
}

// Vote records a vote by voter for the option at choice, counted from zero.
// A voter's previous vote on the same poll is replaced; the latest choice
// wins.
func (s *Store) Vote(ctx context.Context, id int64, voter string, choice int) error {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to vote: %w", err)
	}
	var n int
	err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM poll_options WHERE poll = :poll`, &sqlitex.ExecOptions{
		Named: map[string]any{":poll": id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("couldn't check poll %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("poll %d: %w", id, ErrNotFound)
	}
	if choice < 0 || choice >= n {
		return fmt.Errorf("option %d of poll %d: %w", choice+1, id, ErrBadOption)
	}
	err = sqlitex.Execute(conn, `INSERT INTO poll_votes (poll, voter, choice) VALUES (:poll, :voter, :choice)
		ON CONFLICT (poll, voter) DO UPDATE SET choice = excluded.choice`, &sqlitex.ExecOptions{
		Named: map[string]any{":poll": id, ":voter": voter, ":choice": choice},
	})
	if err != nil {
		return fmt.Errorf("couldn't record vote: %w", err)
	}
	return nil
}

// Tally returns vote counts per option in original option order. Ties are
// reported as-is.
func (s *Store) Tally(ctx context.Context, id int64) ([]Result, error) {
	conn, err := s.db.Take(ctx)
	defer s.db.Put(conn)
	if err != nil {
		return nil, fmt.Errorf("couldn't get conn to tally: %w", err)
	}
	var r []Result
	err = sqlitex.Execute(conn, `
		SELECT o.label, COUNT(v.voter)
		FROM poll_options o
		LEFT JOIN poll_votes v ON v.poll = o.poll AND v.choice = o.idx
		WHERE o.poll = :poll
		GROUP BY o.idx
		ORDER BY o.idx`, &sqlitex.ExecOptions{
		Named: map[string]any{":poll": id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = append(r, Result{Label: stmt.ColumnText(0), Votes: stmt.ColumnInt(1)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't tally poll %d: %w", id, err)
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("poll %d: %w", id, ErrNotFound)
	}
	return r, nil
}
