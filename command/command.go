// Package command implements the bot's command system.
package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/molniya/usher/filter"
	"github.com/molniya/usher/history"
	"github.com/molniya/usher/metrics"
	"github.com/molniya/usher/poll"
	"github.com/molniya/usher/provider"
	"github.com/molniya/usher/reminder"
	"github.com/molniya/usher/roster"
	"github.com/molniya/usher/seen"
	"github.com/molniya/usher/settings"
	"github.com/molniya/usher/transport"
)

// Robot is the bot state as is visible to commands.
type Robot struct {
	Log       *slog.Logger
	Settings  *settings.Store
	Polls     *poll.Store
	Reminders *reminder.Store
	Filter    *filter.Filter
	Seen      *seen.Store
	Roster    *roster.Roster
	History   *history.History
	Weather   *provider.Weather
	AI        *provider.AI
	News      *provider.News
	Shortener *provider.Shortener
	Metrics   metrics.Metrics

	// Conn returns the live connection, or nil while disconnected.
	Conn func() transport.Conn
	// Locked indicates the bot ignores all but unblockable commands.
	Locked *atomic.Bool
	// StartTime is when this process started.
	StartTime time.Time
	// Restart and Quit end the current run. Restart asks for a fresh
	// session; Quit shuts the process down.
	Restart func()
	Quit    func()
}

// Invocation is a command invocation. An Invocation and its fields must not
// be modified or retained by any command.
type Invocation struct {
	// Caller is the user who invoked the command.
	Caller transport.User
	// Name is the resolved command name.
	Name string
	// Args is the tokenized arguments, with quoted segments intact.
	Args []string
	// Rest is the raw argument text after the command name.
	Rest string
	// Channel is the channel the invocation came from, empty for PMs.
	Channel string
	// Private indicates the command arrived by private message.
	Private bool
	// Reply sends text back the way the invocation arrived.
	Reply func(ctx context.Context, text string) error
}

// Func executes a command.
type Func func(ctx context.Context, robo *Robot, call *Invocation)

// Spec describes a command.
type Spec struct {
	// Name is the command's unique, lowercase name.
	Name string
	// Admin restricts the command to administrators.
	Admin bool
	// Unblockable marks commands that work while the bot is locked.
	// Unblock additionally ignores the block-list so an admin can never
	// lock themselves out.
	Unblockable bool
	// Help is the one-line usage shown by the help command.
	Help string
	// Fn is the function which executes the command.
	Fn Func
}

// all is the command registry, read-only after init. It is populated in
// init because the help command's handler itself reads the registry.
var all []*Spec

func init() {
	all = []*Spec{
		{Name: "h", Unblockable: true, Help: "h - list commands", Fn: cmdHelp},
		{Name: "ping", Help: "ping - check that the bot is alive", Fn: cmdPing},
		{Name: "info", Unblockable: true, Help: "info - uptime and connection info", Fn: cmdInfo},
		{Name: "whoami", Help: "whoami - show how the bot sees you", Fn: cmdWhoami},
		{Name: "w", Help: "w <location> - current weather", Fn: cmdWeather},
		{Name: "time", Help: "time <location> - local time at a place", Fn: cmdTime},
		{Name: "news", Help: "news [topic] - top headlines", Fn: cmdNews},
		{Name: "shorten", Help: "shorten <url> - shorten a link", Fn: cmdShorten},
		{Name: "remindme", Help: `remindme "<message>" in <N> minutes|hours|days`, Fn: cmdRemindme},
		{Name: "c", Help: "c <question> - ask the assistant", Fn: cmdChat},
		{Name: "seen", Help: "seen <nick> - when a user was last around", Fn: cmdSeen},
		{Name: "afk", Help: "afk [reason] - mark yourself away", Fn: cmdAFK},
		{Name: "ct", Help: "ct <message> - speak into the bot's channel", Fn: cmdChannelTalk},
		{Name: "poll", Help: `poll "<question>" "<option>" "<option>"... - open a poll`, Fn: cmdPoll},
		{Name: "vote", Help: "vote <poll> <option> - cast or change your vote", Fn: cmdVote},
		{Name: "results", Help: "results <poll> - show the tally", Fn: cmdResults},

		{Name: "rs", Admin: true, Unblockable: true, Help: "rs - restart the session", Fn: cmdRestart},
		{Name: "q", Admin: true, Unblockable: true, Help: "q - shut the bot down", Fn: cmdQuit},
		{Name: "lock", Admin: true, Unblockable: true, Help: "lock - toggle ignoring most commands", Fn: cmdLock},
		{Name: "block", Admin: true, Unblockable: true, Help: "block <command> - disable a command", Fn: cmdBlock},
		{Name: "unblock", Admin: true, Unblockable: true, Help: "unblock <command> - re-enable a command", Fn: cmdUnblock},
		{Name: "kick", Admin: true, Help: "kick <nick> - remove a user from the channel", Fn: cmdKick},
		{Name: "move", Admin: true, Help: "move <nick> <path> - move a user to a channel", Fn: cmdMove},
		{Name: "ban", Admin: true, Help: "ban <nick> - ban a connected user", Fn: cmdBan},
		{Name: "unban", Admin: true, Help: "unban <username> - lift a ban", Fn: cmdUnban},
		{Name: "jc", Admin: true, Help: "jc <path> - join a channel", Fn: cmdJoinChannel},
		{Name: "jcl", Admin: true, Help: "jcl - toggle join/leave announcements", Fn: cmdToggleAnnounce},
		{Name: "tfilter", Admin: true, Unblockable: true, Help: "tfilter - toggle the word filter", Fn: cmdToggleFilter},
		{Name: "filter", Admin: true, Help: "filter add|rm|list [word] - manage filtered words", Fn: cmdFilterWords},
		{Name: "cn", Admin: true, Help: "cn <nickname> - change the bot's nickname", Fn: cmdNickname},
		{Name: "cs", Admin: true, Help: "cs <status> - change the bot's status", Fn: cmdStatus},
	}
}

// Find returns the command named name, or nil if there is none. Lookup is
// case-insensitive.
func Find(name string) *Spec {
	name = strings.ToLower(name)
	for _, c := range all {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Commands returns the registry in registration order.
func Commands() []*Spec {
	return all
}

// Authorization failures. Every denial is one of these.
var (
	ErrAdminOnly = errors.New("this command is for admins only")
	ErrBlocked   = errors.New("this command is blocked")
	ErrLocked    = errors.New("the bot is locked")
)

// Authorize decides whether caller may run c under the given settings.
// Admins get no exemption from the block-list; only unblock itself does,
// so a blocked command can always be restored.
func Authorize(c *Spec, s *settings.Settings, locked bool, caller transport.User) error {
	if locked && !c.Unblockable {
		return ErrLocked
	}
	if s.Blocklisted(c.Name) && c.Name != "unblock" {
		return ErrBlocked
	}
	if c.Admin && !s.IsAdmin(caller.Username) {
		return ErrAdminOnly
	}
	return nil
}
