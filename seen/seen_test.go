package seen_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/molniya/usher/seen"
)

var dbcount atomic.Uint64

func testDB(ctx context.Context) *sqlitex.Pool {
	k := dbcount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:seen-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		panic(err)
	}
	return pool
}

func TestLastSeen(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := seen.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.LastSeen(ctx, "bocchi"); err != nil || ok {
		t.Errorf("unknown user should be unseen: ok=%v err=%v", ok, err)
	}
	first := time.UnixMilli(time.Now().Add(-time.Hour).UnixMilli())
	if err := s.Touch(ctx, "Bocchi", first); err != nil {
		t.Fatal(err)
	}
	at, ok, err := s.LastSeen(ctx, "bocchi")
	if err != nil || !ok {
		t.Fatalf("couldn't read last seen: ok=%v err=%v", ok, err)
	}
	if !at.Equal(first) {
		t.Errorf("wrong last seen: want %v, got %v", first, at)
	}
	// A later touch wins, and lookup is case-insensitive on the name.
	second := time.UnixMilli(time.Now().UnixMilli())
	if err := s.Touch(ctx, "bocchi", second); err != nil {
		t.Fatal(err)
	}
	at, _, err = s.LastSeen(ctx, "BOCCHI")
	if err != nil {
		t.Fatal(err)
	}
	if !at.Equal(second) {
		t.Errorf("touch didn't update: want %v, got %v", second, at)
	}
}

func TestAFK(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := seen.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, away, err := s.AFK(ctx, "ryo"); err != nil || away {
		t.Errorf("new user shouldn't be away: away=%v err=%v", away, err)
	}
	since := time.UnixMilli(time.Now().UnixMilli())
	if err := s.SetAFK(ctx, "ryo", "buying effects pedals", since); err != nil {
		t.Fatal(err)
	}
	reason, got, away, err := s.AFK(ctx, "RYO")
	if err != nil || !away {
		t.Fatalf("couldn't read afk: away=%v err=%v", away, err)
	}
	if reason != "buying effects pedals" || !got.Equal(since) {
		t.Errorf("wrong afk record: %q at %v", reason, got)
	}
	was, err := s.ClearAFK(ctx, "ryo")
	if err != nil || !was {
		t.Errorf("clear should report the user was away: was=%v err=%v", was, err)
	}
	was, err = s.ClearAFK(ctx, "ryo")
	if err != nil || was {
		t.Errorf("second clear should be a no-op: was=%v err=%v", was, err)
	}
}
