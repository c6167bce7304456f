// Package filter implements word filtering with per-user strike tracking.
//
// Matching is case-insensitive and whole-word: a filtered word matches only
// when its neighbors in the message are not letters, digits, or connector
// punctuation, so "class" does not trip a filter on "ass".
package filter

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/rangetable"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Action is the moderation outcome for one message.
type Action int

const (
	// ActionNone means the message is clean or filtering is off.
	ActionNone Action = iota
	// ActionWarn means the sender should be warned.
	ActionWarn
	// ActionKick means the sender reached the strike threshold and should
	// be removed from the channel.
	ActionKick
)

// wordRunes are the rune classes that extend a word. Anything outside them
// is a word boundary.
var wordRunes = rangetable.Merge(unicode.L, unicode.N, unicode.Pc)

// Filter evaluates messages against a word list and tracks strikes.
type Filter struct {
	db *sqlitex.Pool
	// Threshold is the consecutive strike count at which a sender is
	// kicked rather than warned.
	Threshold int
}

//go:embed schema.sql
var schemaSQL string

// Init initializes an SQLite DB to record filter strikes.
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
			return fmt.Errorf("couldn't get conn to init filter: %w", err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't initialize filter schema: %w", err)
	}
	return nil
}

// Open initializes the schema and returns a filter with the given kick
// threshold.
func Open(ctx context.Context, db *sqlitex.Pool, threshold int) (*Filter, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Filter{db: db, Threshold: threshold}, nil
}

// Match reports whether text contains any of words as a whole word,
// case-insensitively.
func Match(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if w == "" {
			continue
		}
		if matchWord(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func matchWord(text, word string) bool {
	for at := 0; ; {
		k := strings.Index(text[at:], word)
		if k < 0 {
			return false
		}
		k += at
		if boundedAt(text, k, len(word)) {
			return true
		}
		at = k + 1
	}
}

// boundedAt reports whether the match of length n at offset k in text is
// bounded by non-word runes on both sides.
func boundedAt(text string, k, n int) bool {
	if k > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:k])
		if unicode.In(r, wordRunes) {
			return false
		}
	}
	if k+n < len(text) {
		r, _ := utf8.DecodeRuneInString(text[k+n:])
		if unicode.In(r, wordRunes) {
			return false
		}
	}
	return true
}

// Evaluate checks one channel message from username against words. It
// returns the action to take and the sender's strike count after the
// message. When enabled is false, or the message is clean, strikes reset
// and the action is ActionNone. A kick also resets strikes so the sender
// starts over if they rejoin.
func (f *Filter) Evaluate(ctx context.Context, username, text string, words []string, enabled bool) (Action, int, error) {
	if !enabled || !Match(text, words) {
		if err := f.reset(ctx, username); err != nil {
			return ActionNone, 0, err
		}
		return ActionNone, 0, nil
	}
	n, err := f.strike(ctx, username)
	if err != nil {
		return ActionNone, 0, err
	}
	if n >= f.Threshold {
		if err := f.reset(ctx, username); err != nil {
			return ActionKick, n, err
		}
		return ActionKick, n, nil
	}
	return ActionWarn, n, nil
}

// strike increments username's strike count and returns the new count.
func (f *Filter) strike(ctx context.Context, username string) (int, error) {
	conn, err := f.db.Take(ctx)
	defer f.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get conn to record strike: %w", err)
	}
	var n int
	err = sqlitex.Execute(conn, `INSERT INTO filter_strikes (username, strikes) VALUES (:username, 1)
		ON CONFLICT (username) DO UPDATE SET strikes = strikes + 1
		RETURNING strikes`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("couldn't record strike: %w", err)
	}
	return n, nil
}

func (f *Filter) reset(ctx context.Context, username string) error {
	conn, err := f.db.Take(ctx)
	defer f.db.Put(conn)
	if err != nil {
		return fmt.Errorf("couldn't get conn to reset strikes: %w", err)
	}
	err = sqlitex.Execute(conn, `DELETE FROM filter_strikes WHERE username = :username`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username)},
	})
	if err != nil {
		return fmt.Errorf("couldn't reset strikes: %w", err)
	}
	return nil
}

// Strikes returns username's current consecutive strike count.
func (f *Filter) Strikes(ctx context.Context, username string) (int, error) {
	conn, err := f.db.Take(ctx)
	defer f.db.Put(conn)
	if err != nil {
		return 0, fmt.Errorf("couldn't get conn to read strikes: %w", err)
	}
	var n int
	err = sqlitex.Execute(conn, `SELECT strikes FROM filter_strikes WHERE username = :username`, &sqlitex.ExecOptions{
		Named: map[string]any{":username": strings.ToLower(username)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("couldn't read strikes: %w", err)
	}
	return n, nil
}
