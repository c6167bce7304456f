package reminder_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/molniya/usher/reminder"
)

var dbcount atomic.Uint64

func testDB(ctx context.Context) *sqlitex.Pool {
	k := dbcount.Add(1)
	pool, err := sqlitex.NewPool(fmt.Sprintf("file:reminder-%d.db?mode=memory&cache=shared", k), sqlitex.PoolOptions{Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenMemory | sqlite.OpenSharedCache | sqlite.OpenURI})
	if err != nil {
		panic(err)
	}
	return pool
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := reminder.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	id, err := s.Schedule(ctx, "bocchi", "tune the guitar", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("couldn't schedule: %v", err)
	}
	if id == "" {
		t.Error("empty reminder id")
	}
	if _, err := s.Schedule(ctx, "ryo", "buy strings", now.Add(time.Hour)); err != nil {
		t.Fatalf("couldn't schedule future reminder: %v", err)
	}
	due, err := s.Due(ctx, now)
	if err != nil {
		t.Fatalf("couldn't collect due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("want 1 due reminder, got %d", len(due))
	}
	if due[0].ID != id || due[0].Owner != "bocchi" || due[0].Message != "tune the guitar" {
		t.Errorf("wrong due reminder: %+v", due[0])
	}
	// The future one matures eventually.
	due, err = s.Due(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("couldn't collect due: %v", err)
	}
	if len(due) != 2 {
		t.Errorf("want 2 due reminders later, got %d", len(due))
	}
}

func TestDelivered(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := reminder.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	id, err := s.Schedule(ctx, "bocchi", "practice", now)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delivered(ctx, id); err != nil {
		t.Errorf("couldn't mark delivered: %v", err)
	}
	due, err := s.Due(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("delivered reminder still due: %+v", due)
	}
}

func TestFailed(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := reminder.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Schedule(ctx, "bocchi", "practice", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for want := 1; want <= 3; want++ {
		n, err := s.Failed(ctx, id)
		if err != nil {
			t.Fatalf("couldn't record failure: %v", err)
		}
		if n != want {
			t.Errorf("wrong attempt count: want %d, got %d", want, n)
		}
	}
	if err := s.Abandon(ctx, id); err != nil {
		t.Errorf("couldn't abandon: %v", err)
	}
	due, err := s.Due(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("abandoned reminder still due: %+v", due)
	}
}

func TestLoop(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := reminder.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	// One matured reminder goes out on the immediate first pass, well before
	// the first tick of a long interval.
	if _, err := s.Schedule(ctx, "bocchi", "sound check", time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	got := make(chan reminder.Reminder, 1)
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- s.Loop(cctx, time.Hour, 5, func(ctx context.Context, r reminder.Reminder) error {
			got <- r
			return nil
		})
	}()
	select {
	case r := <-got:
		if r.Owner != "bocchi" || r.Message != "sound check" {
			t.Errorf("wrong reminder delivered: %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery on the startup pass")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("loop should end with context.Canceled, got %v", err)
	}
}

func TestLoopNotReady(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := reminder.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(ctx, "bocchi", "warm up", time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int64
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- s.Loop(cctx, 10*time.Millisecond, 3, func(ctx context.Context, r reminder.Reminder) error {
			calls.Add(1)
			return reminder.ErrNotReady
		})
	}()
	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	// Many more passes than the attempt bound, yet the reminder survives with
	// no attempts recorded.
	due, err := s.Due(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("reminder should still be due after not-ready passes, got %d due", len(due))
	}
	if due[0].Attempts != 0 {
		t.Errorf("not-ready passes must not count as attempts, got %d", due[0].Attempts)
	}
}

func TestLoopRetries(t *testing.T) {
	ctx := context.Background()
	db := testDB(ctx)
	s, err := reminder.Open(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule(ctx, "ryo", "pay back nijika", time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int64
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- s.Loop(cctx, 10*time.Millisecond, 3, func(ctx context.Context, r reminder.Reminder) error {
			calls.Add(1)
			return errors.New("recipient offline")
		})
	}()
	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if n := calls.Load(); n != 3 {
		t.Errorf("delivery should be attempted exactly 3 times, got %d", n)
	}
	due, err := s.Due(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("abandoned reminder still due: %+v", due)
	}
}
