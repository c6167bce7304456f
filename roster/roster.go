// Package roster tracks users currently connected to the server.
//
// The roster is rebuilt from join events after every reconnect, so it holds
// no durable state.
package roster

import (
	"sort"
	"strings"
	"sync"

	"github.com/molniya/usher/transport"
)

// Member is a connected user and the channel they occupy, if any.
type Member struct {
	User    transport.User
	Channel string
}

// Roster is the set of currently connected users. The zero value is ready
// to use.
type Roster struct {
	mu sync.Mutex
	// members is keyed by lowercased username.
	members map[string]Member
}

// Join records that u is connected in channel. A user already present moves
// to the new channel.
func (r *Roster) Join(u transport.User, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members == nil {
		r.members = make(map[string]Member)
	}
	r.members[strings.ToLower(u.Username)] = Member{User: u, Channel: channel}
}

// Leave removes u from the roster.
func (r *Roster) Leave(u transport.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, strings.ToLower(u.Username))
}

// Reset empties the roster. Call it when a connection drops, since the
// server sends a fresh set of joins after reconnecting.
func (r *Roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.members)
}

// Find looks up a connected user by username or nickname,
// case-insensitively. Username matches win over nickname matches.
func (r *Roster) Find(name string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[strings.ToLower(name)]; ok {
		return m, true
	}
	for _, m := range r.members {
		if strings.EqualFold(m.User.Nickname, name) {
			return m, true
		}
	}
	return Member{}, false
}

// Channel returns the members of channel sorted by username.
func (r *Roster) Channel(channel string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	var l []Member
	for _, m := range r.members {
		if strings.EqualFold(m.Channel, channel) {
			l = append(l, m)
		}
	}
	sort.Slice(l, func(i, j int) bool { return l[i].User.Username < l[j].User.Username })
	return l
}

// Len returns the number of connected users.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
