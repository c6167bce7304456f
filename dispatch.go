package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/pick"

	"github.com/molniya/usher/command"
	"github.com/molniya/usher/filter"
	"github.com/molniya/usher/transport"
)

// dispatch routes one server event. It runs on the session event loop, so
// anything slow goes to the worker pool.
func (b *Bot) dispatch(ctx context.Context, ev transport.Event) {
	switch ev := ev.(type) {
	case transport.MessageEvent:
		b.message(ctx, ev.Message)
	case transport.JoinEvent:
		b.roster.Join(ev.User, ev.Channel)
		b.announce(ctx, b.joins, ev.User, ev.Channel)
	case transport.LeaveEvent:
		b.roster.Leave(ev.User)
		b.announce(ctx, b.leaves, ev.User, ev.Channel)
	}
}

func (b *Bot) message(ctx context.Context, m transport.Message) {
	if strings.EqualFold(m.From.Username, b.cfg.Server.Username) {
		// Never react to our own messages.
		return
	}
	if err := b.seen.Touch(ctx, m.From.Username, time.Now()); err != nil {
		b.log.WarnContext(ctx, "couldn't touch last seen", slog.Any("err", err))
	}
	b.clearAFK(ctx, m)
	if m.Private {
		b.command(ctx, m, "")
		return
	}
	if req := command.Parse(m.Text, b.cfg.Bot.Prefix); req != nil {
		b.command(ctx, m, b.cfg.Bot.Prefix)
		return
	}
	b.filterMessage(ctx, m)
}

// clearAFK removes the sender's away status on any activity except the afk
// command itself, which would otherwise cancel what it just set.
func (b *Bot) clearAFK(ctx context.Context, m transport.Message) {
	prefix := b.cfg.Bot.Prefix
	if m.Private {
		prefix = ""
	}
	if req := command.Parse(m.Text, prefix); req != nil && req.Name == "afk" {
		return
	}
	was, err := b.seen.ClearAFK(ctx, m.From.Username)
	if err != nil {
		b.log.WarnContext(ctx, "couldn't clear afk", slog.Any("err", err))
		return
	}
	if was && !m.Private {
		b.say(ctx, m.Channel, m.From.Nickname+" is back")
	}
}

// command parses and runs a command invocation.
func (b *Bot) command(ctx context.Context, m transport.Message, prefix string) {
	req := command.Parse(m.Text, prefix)
	if req == nil {
		return
	}
	reply := func(ctx context.Context, text string) error {
		if m.Private {
			return b.whisper(ctx, m.From.Username, text)
		}
		return b.say(ctx, m.Channel, text)
	}
	c := command.Find(req.Name)
	if c == nil {
		reply(ctx, "I don't know that command; try h")
		return
	}
	s := b.set.Current()
	if err := command.Authorize(c, s, b.locked.Load(), m.From); err != nil {
		b.log.WarnContext(ctx, "command denied",
			slog.String("name", c.Name),
			slog.String("user", m.From.Username),
			slog.Any("reason", err),
		)
		reply(ctx, err.Error())
		return
	}
	b.log.InfoContext(ctx, "command",
		slog.String("name", c.Name),
		slog.String("user", m.From.Username),
		slog.Bool("private", m.Private),
	)
	b.metrics.CommandCount.Observe(1, c.Name)
	robo := &command.Robot{
		Log:       b.log,
		Settings:  b.set,
		Polls:     b.polls,
		Reminders: b.reminders,
		Filter:    b.filter,
		Seen:      b.seen,
		Roster:    &b.roster,
		History:   b.hist,
		Weather:   b.weather,
		AI:        b.ai,
		News:      b.news,
		Shortener: b.shortener,
		Metrics:   *b.metrics,
		Conn:      b.connected,
		Locked:    &b.locked,
		StartTime: b.start,
		Restart:   b.restart,
		Quit:      func() { b.quit() },
	}
	inv := &command.Invocation{
		Caller:  m.From,
		Name:    c.Name,
		Args:    req.Args,
		Rest:    req.Rest,
		Channel: m.Channel,
		Private: m.Private,
		Reply:   reply,
	}
	work := func(ctx context.Context) {
		defer func() {
			if v := recover(); v != nil {
				b.log.ErrorContext(ctx, "command panicked",
					slog.String("name", c.Name),
					slog.Any("panic", v),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		c.Fn(ctx, robo, inv)
	}
	b.enqueue(ctx, work)
}

// filterMessage evaluates a non-command channel message against the word
// filter.
func (b *Bot) filterMessage(ctx context.Context, m transport.Message) {
	s := b.set.Current()
	act, strikes, err := b.filter.Evaluate(ctx, m.From.Username, m.Text, s.FilterWords, s.FilterOn)
	if err != nil {
		b.log.ErrorContext(ctx, "couldn't evaluate filter", slog.Any("err", err))
		return
	}
	switch act {
	case filter.ActionNone: // do nothing
	case filter.ActionWarn:
		b.metrics.FilterWarnCount.Observe(1)
		left := b.filter.Threshold - strikes
		b.say(ctx, m.Channel, fmt.Sprintf("%s, watch your language (%d more and you're out)", m.From.Nickname, left))
	case filter.ActionKick:
		b.metrics.FilterKickCount.Observe(1)
		conn := b.connected()
		if conn == nil {
			return
		}
		if err := conn.Kick(ctx, m.From.ID, m.Channel); err != nil {
			b.log.ErrorContext(ctx, "couldn't kick", slog.Any("err", err), slog.String("user", m.From.Username))
			return
		}
		b.say(ctx, m.Channel, m.From.Nickname+" was kicked for language")
	}
}

// announce posts a join or leave greeting when announcements are on.
func (b *Bot) announce(ctx context.Context, greets *pick.Dist[string], u transport.User, channel string) {
	if greets == nil || channel == "" {
		return
	}
	if strings.EqualFold(u.Username, b.cfg.Server.Username) {
		return
	}
	if !b.set.Current().AnnounceJoinLeave {
		return
	}
	g := greets.Pick(rand.Uint32())
	if g == "" {
		return
	}
	b.say(ctx, channel, fmt.Sprintf(g, u.Nickname))
}
