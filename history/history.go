// Package history keeps short rolling conversation transcripts for the
// assistant provider.
package history

import (
	"strings"
	"sync"
	"time"
)

// Turn is one utterance in a conversation.
type Turn struct {
	// Bot is true when the utterance was the bot's reply.
	Bot  bool
	Text string
	At   time.Time
}

// History holds a bounded transcript per conversation key. Old turns expire
// after the retention period and the per-conversation turn count is capped.
type History struct {
	mu sync.Mutex
	// convs is keyed by lowercased conversation key, usually the
	// counterparty's username.
	convs map[string][]Turn

	// Limit is the maximum turns kept per conversation.
	Limit int
	// Retention is how long a turn stays relevant.
	Retention time.Duration
}

// New creates a history keeping up to limit turns per conversation for at
// most retention.
func New(limit int, retention time.Duration) *History {
	return &History{
		convs:     make(map[string][]Turn),
		Limit:     limit,
		Retention: retention,
	}
}

// Add appends a turn to key's conversation.
func (h *History) Add(key string, bot bool, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := strings.ToLower(key)
	l := h.trim(h.convs[k], time.Now())
	l = append(l, Turn{Bot: bot, Text: text, At: time.Now()})
	if len(l) > h.Limit {
		l = l[len(l)-h.Limit:]
	}
	h.convs[k] = l
}

// Recent returns the unexpired turns of key's conversation, oldest first.
func (h *History) Recent(key string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := strings.ToLower(key)
	l := h.trim(h.convs[k], time.Now())
	h.convs[k] = l
	r := make([]Turn, len(l))
	copy(r, l)
	return r
}

// Forget drops key's conversation entirely.
func (h *History) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.convs, strings.ToLower(key))
}

// trim drops turns older than the retention period. h.mu must be held.
func (h *History) trim(l []Turn, now time.Time) []Turn {
	cut := now.Add(-h.Retention)
	i := 0
	for i < len(l) && l[i].At.Before(cut) {
		i++
	}
	return l[i:]
}
