package history_test

import (
	"testing"
	"time"

	"github.com/molniya/usher/history"
)

func TestAddRecent(t *testing.T) {
	h := history.New(3, time.Hour)
	h.Add("bocchi", false, "hello")
	h.Add("bocchi", true, "hi there")
	h.Add("ryo", false, "unrelated")
	got := h.Recent("bocchi")
	if len(got) != 2 {
		t.Fatalf("want 2 turns, got %d", len(got))
	}
	if got[0].Bot || got[0].Text != "hello" {
		t.Errorf("wrong first turn: %+v", got[0])
	}
	if !got[1].Bot || got[1].Text != "hi there" {
		t.Errorf("wrong second turn: %+v", got[1])
	}
	// Conversations don't leak across keys, and key lookup is
	// case-insensitive.
	if got := h.Recent("nijika"); len(got) != 0 {
		t.Errorf("unrelated conversation has turns: %+v", got)
	}
	if got := h.Recent("BOCCHI"); len(got) != 2 {
		t.Errorf("key lookup should be case-insensitive, got %d turns", len(got))
	}
}

func TestLimit(t *testing.T) {
	h := history.New(2, time.Hour)
	h.Add("bocchi", false, "one")
	h.Add("bocchi", true, "two")
	h.Add("bocchi", false, "three")
	got := h.Recent("bocchi")
	if len(got) != 2 {
		t.Fatalf("want 2 turns after overflow, got %d", len(got))
	}
	if got[0].Text != "two" || got[1].Text != "three" {
		t.Errorf("oldest turn should drop first: %+v", got)
	}
}

func TestRetention(t *testing.T) {
	h := history.New(10, 50*time.Millisecond)
	h.Add("bocchi", false, "stale")
	time.Sleep(80 * time.Millisecond)
	h.Add("bocchi", true, "fresh")
	got := h.Recent("bocchi")
	if len(got) != 1 || got[0].Text != "fresh" {
		t.Errorf("expired turns should drop: %+v", got)
	}
}

func TestForget(t *testing.T) {
	h := history.New(10, time.Hour)
	h.Add("bocchi", false, "hello")
	h.Forget("bocchi")
	if got := h.Recent("bocchi"); len(got) != 0 {
		t.Errorf("forgotten conversation has turns: %+v", got)
	}
}
