// Package settings persists the bot's mutable runtime settings.
//
// Settings are a single versioned value. Readers take a snapshot and never
// observe a half-updated record; writers copy, mutate, persist, and swap
// under the store lock.
package settings

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"
)

// Settings is the durable runtime configuration mutated by admin commands.
type Settings struct {
	// Nickname and Status are the session attributes reapplied after
	// every reconnect.
	Nickname string `json:"nickname"`
	Status   string `json:"status"`
	// Channel is the channel path the bot joins on connect.
	Channel string `json:"channel"`
	// Admins is the set of account names allowed to run admin commands.
	Admins []string `json:"admins"`
	// Blocked is the set of command names disabled at runtime.
	Blocked []string `json:"blocked,omitzero"`
	// FilterWords is the banned-word list.
	FilterWords []string `json:"filterWords,omitzero"`
	// FilterOn enables the word filter.
	FilterOn bool `json:"filterOn"`
	// AnnounceJoinLeave enables join and leave announcements.
	AnnounceJoinLeave bool `json:"announceJoinLeave"`
	// Version increments on every persisted update.
	Version int64 `json:"version"`
}

// IsAdmin reports whether the account name is in the admin set.
// Matching is case-insensitive and exact.
func (s *Settings) IsAdmin(username string) bool {
	for _, a := range s.Admins {
		if strings.EqualFold(a, username) {
			return true
		}
	}
	return false
}

// Blocklisted reports whether the command name is on the block-list.
func (s *Settings) Blocklisted(cmd string) bool {
	for _, b := range s.Blocked {
		if strings.EqualFold(b, cmd) {
			return true
		}
	}
	return false
}

// clone returns a deep copy safe to mutate.
func (s *Settings) clone() *Settings {
	c := *s
	c.Admins = slices.Clone(s.Admins)
	c.Blocked = slices.Clone(s.Blocked)
	c.FilterWords = slices.Clone(s.FilterWords)
	return &c
}

var key = []byte("usher.settings")

// Store is the durable settings store.
type Store struct {
	db *badger.DB
	// mu serializes updates. Reads go through cur without locking.
	mu  sync.Mutex
	cur atomic.Pointer[Settings]
}

// Open loads settings from db, seeding def if none are stored yet.
func Open(db *badger.DB, def Settings) (*Store, error) {
	s := &Store{db: db}
	err := db.View(func(txn *badger.Txn) error {
		it, err := txn.Get(key)
		if err != nil {
			return err
		}
		return it.Value(func(val []byte) error {
			var got Settings
			if err := json.Unmarshal(val, &got); err != nil {
				return fmt.Errorf("couldn't decode stored settings: %w", err)
			}
			s.cur.Store(&got)
			return nil
		})
	})
	switch {
	case err == nil:
		return s, nil
	case err == badger.ErrKeyNotFound:
		s.cur.Store(&def)
		if err := s.persist(&def); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("couldn't load settings: %w", err)
	}
}

// Current returns the current settings snapshot. The returned value must not
// be modified; use Update.
func (s *Store) Current() *Settings {
	return s.cur.Load()
}

// Update applies mut to a copy of the current settings, persists the result,
// and publishes it. The new snapshot is returned even when persisting fails,
// in which case the update is applied in memory only and the error reports
// the at-risk state.
func (s *Store) Update(mut func(*Settings)) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur.Load().clone()
	mut(next)
	next.Version++
	err := s.persist(next)
	s.cur.Store(next)
	return next, err
}

func (s *Store) persist(v *Settings) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("couldn't encode settings: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, b)
	})
	if err != nil {
		return fmt.Errorf("couldn't persist settings: %w", err)
	}
	return nil
}
