package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/molniya/usher/transport"
)

// fakeConn is a scriptable transport.Conn for session tests.
type fakeConn struct {
	events chan transport.Event

	mu     sync.Mutex
	ops    []string
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 8)}
}

func (c *fakeConn) op(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, s)
}

func (c *fakeConn) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *fakeConn) Events() <-chan transport.Event { return c.events }
func (c *fakeConn) Err() error                     { return nil }

func (c *fakeConn) SendPrivate(ctx context.Context, to, text string) error {
	c.op("whisper " + to + ": " + text)
	return nil
}

func (c *fakeConn) SendChannel(ctx context.Context, channel, text string) error {
	c.op("say " + channel + ": " + text)
	return nil
}

func (c *fakeConn) Join(ctx context.Context, path string) error {
	c.op("join " + path)
	return nil
}

func (c *fakeConn) SetNick(ctx context.Context, nick string) error {
	c.op("nick " + nick)
	return nil
}

func (c *fakeConn) SetStatus(ctx context.Context, status string) error {
	c.op("status " + status)
	return nil
}

func (c *fakeConn) Kick(ctx context.Context, user, channel string) error {
	c.op("kick " + user)
	return nil
}

func (c *fakeConn) Move(ctx context.Context, user, path string) error {
	c.op("move " + user + " " + path)
	return nil
}

func (c *fakeConn) Ban(ctx context.Context, username string) error {
	c.op("ban " + username)
	return nil
}

func (c *fakeConn) Unban(ctx context.Context, username string) error {
	c.op("unban " + username)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

var testDBCount atomic.Uint64

// testBot builds a Bot over in-memory stores with a dial the test controls.
func testBot(t *testing.T, dial dialFunc) *Bot {
	t.Helper()
	dir := t.TempDir()
	secret := filepath.Join(dir, "password")
	if err := os.WriteFile(secret, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{
		Server: ServerCfg{
			URL:        "wss://test.invalid/ws",
			Username:   "usher",
			SecretFile: secret,
		},
		Bot: BotCfg{
			Nickname: "Usher",
			Status:   "testing",
			Channel:  "/lobby",
			Admins:   []string{"molniya"},
			Prefix:   "/",
		},
		Filter:    FilterCfg{Threshold: 3},
		Rate:      Rate{Every: 0.001, Num: 100},
		Reconnect: ReconnectCfg{Min: 0.01, Max: 0.01},
		Reminders: RemindersCfg{Tick: 15, Attempts: 5},
		History:   HistoryCfg{Turns: 10, Retention: 900},
	}
	kv, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	k := testDBCount.Add(1)
	pool, err := sqlitex.NewPool(
		fmt.Sprintf("file:session-test-%d.db?mode=memory&cache=shared", k),
		sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI},
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.Close() })
	b, err := New(context.Background(), slog.Default(), cfg, newMetrics(), kv, pool)
	if err != nil {
		t.Fatal(err)
	}
	b.dial = dial
	b.quit = func() {}
	return b
}

func TestSessionReconnects(t *testing.T) {
	conns := make(chan *fakeConn, 4)
	var dials atomic.Int64
	dial := func(ctx context.Context, cfg transport.Config) (transport.Conn, error) {
		dials.Add(1)
		c := newFakeConn()
		conns <- c
		return c, nil
	}
	b := testBot(t, dial)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.session(ctx) }()

	first := <-conns
	waitFor(t, func() bool { return b.connected() != nil })
	// Dropping the connection brings a new one.
	first.Close()
	var second *fakeConn
	select {
	case second = <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("no reconnect after drop")
	}
	waitFor(t, func() bool { return b.connected() != nil })
	// The persisted identity is reapplied on the fresh connection.
	ops := second.Ops()
	if len(ops) < 2 || ops[0] != "status testing" || ops[1] != "join /lobby" {
		t.Errorf("identity not reapplied after reconnect: %v", ops)
	}
	if n := dials.Load(); n != 2 {
		t.Errorf("want 2 dials, got %d", n)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("session should end with context.Canceled, got %v", err)
	}
}

func TestSessionAuthFatal(t *testing.T) {
	var dials atomic.Int64
	dial := func(ctx context.Context, cfg transport.Config) (transport.Conn, error) {
		dials.Add(1)
		return nil, &transport.AuthError{Reason: "bad password"}
	}
	b := testBot(t, dial)
	err := b.session(context.Background())
	var auth *transport.AuthError
	if !errors.As(err, &auth) {
		t.Errorf("auth failure should be fatal, got %v", err)
	}
	if n := dials.Load(); n != 1 {
		t.Errorf("auth failure must not be retried: %d dials", n)
	}
}

func TestSessionStopDuringBackoff(t *testing.T) {
	dial := func(ctx context.Context, cfg transport.Config) (transport.Conn, error) {
		return nil, errors.New("connection refused")
	}
	b := testBot(t, dial)
	// A long backoff window shows that cancellation doesn't wait it out.
	b.cfg.Reconnect.Min = 60
	b.cfg.Reconnect.Max = 60
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.session(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("session should end with context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop promptly during backoff")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never held")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
