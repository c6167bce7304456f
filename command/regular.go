package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/molniya/usher/provider"
)

func cmdHelp(ctx context.Context, robo *Robot, call *Invocation) {
	admin := robo.Settings.Current().IsAdmin(call.Caller.Username)
	var sb strings.Builder
	sb.WriteString("commands:")
	for _, c := range Commands() {
		if c.Admin && !admin {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(c.Help)
	}
	call.Reply(ctx, sb.String())
}

func cmdPing(ctx context.Context, robo *Robot, call *Invocation) {
	call.Reply(ctx, "pong!")
}

func cmdInfo(ctx context.Context, robo *Robot, call *Invocation) {
	s := robo.Settings.Current()
	up := time.Since(robo.StartTime).Round(time.Second)
	state := "unlocked"
	if robo.Locked.Load() {
		state = "locked"
	}
	call.Reply(ctx, fmt.Sprintf("%s in %s, up %v, %d users online, %s", s.Nickname, s.Channel, up, robo.Roster.Len(), state))
}

func cmdWhoami(ctx context.Context, robo *Robot, call *Invocation) {
	role := "a regular user"
	if robo.Settings.Current().IsAdmin(call.Caller.Username) {
		role = "an admin"
	}
	call.Reply(ctx, fmt.Sprintf("you are %s (%s), %s", call.Caller.Username, call.Caller.Nickname, role))
}

func cmdWeather(ctx context.Context, robo *Robot, call *Invocation) {
	if !robo.Weather.Enabled() {
		call.Reply(ctx, "the weather service isn't configured")
		return
	}
	if call.Rest == "" {
		call.Reply(ctx, "w <location>")
		return
	}
	r, err := observe(ctx, robo, "weather", func(ctx context.Context) (string, error) {
		return robo.Weather.Current(ctx, call.Rest)
	})
	if err != nil {
		replyProviderError(ctx, robo, call, "weather", err)
		return
	}
	call.Reply(ctx, r)
}

func cmdTime(ctx context.Context, robo *Robot, call *Invocation) {
	if !robo.Weather.Enabled() {
		call.Reply(ctx, "the weather service isn't configured")
		return
	}
	if call.Rest == "" {
		call.Reply(ctx, "time <location>")
		return
	}
	r, err := observe(ctx, robo, "weather", func(ctx context.Context) (string, error) {
		return robo.Weather.LocalTime(ctx, call.Rest)
	})
	if err != nil {
		replyProviderError(ctx, robo, call, "time", err)
		return
	}
	call.Reply(ctx, r)
}

func cmdNews(ctx context.Context, robo *Robot, call *Invocation) {
	if !robo.News.Enabled() {
		call.Reply(ctx, "the news service isn't configured")
		return
	}
	r, err := observe(ctx, robo, "news", func(ctx context.Context) (string, error) {
		return robo.News.Top(ctx, call.Rest)
	})
	if err != nil {
		replyProviderError(ctx, robo, call, "news", err)
		return
	}
	call.Reply(ctx, r)
}

func cmdShorten(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) == 0 {
		call.Reply(ctx, "shorten <url>")
		return
	}
	r, err := observe(ctx, robo, "shorten", func(ctx context.Context) (string, error) {
		return robo.Shortener.Shorten(ctx, call.Args[0])
	})
	if err != nil {
		if errors.Is(err, provider.ErrInvalidURL) {
			call.Reply(ctx, "that doesn't look like a URL")
			return
		}
		replyProviderError(ctx, robo, call, "shorten", err)
		return
	}
	call.Reply(ctx, r)
}

func cmdChat(ctx context.Context, robo *Robot, call *Invocation) {
	if !robo.AI.Enabled() {
		call.Reply(ctx, "the assistant isn't configured")
		return
	}
	if call.Rest == "" {
		call.Reply(ctx, "c <question>")
		return
	}
	hist := robo.History.Recent(call.Caller.Username)
	turns := make([]provider.Turn, len(hist))
	for i, t := range hist {
		turns[i] = provider.Turn{Bot: t.Bot, Text: t.Text}
	}
	r, err := observe(ctx, robo, "ai", func(ctx context.Context) (string, error) {
		return robo.AI.Reply(ctx, turns, call.Rest)
	})
	if err != nil {
		replyProviderError(ctx, robo, call, "assistant", err)
		return
	}
	robo.History.Add(call.Caller.Username, false, call.Rest)
	robo.History.Add(call.Caller.Username, true, r)
	call.Reply(ctx, r)
}

func cmdSeen(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) == 0 {
		call.Reply(ctx, "seen <nick>")
		return
	}
	name := call.Args[0]
	if m, ok := robo.Roster.Find(name); ok {
		where := "on the server"
		if m.Channel != "" {
			where = "in " + m.Channel
		}
		if reason, since, away, err := robo.Seen.AFK(ctx, m.User.Username); err == nil && away {
			call.Reply(ctx, fmt.Sprintf("%s is %s but afk since %s: %s", m.User.Nickname, where, since.Format("15:04"), reason))
			return
		}
		call.Reply(ctx, fmt.Sprintf("%s is online right now, %s", m.User.Nickname, where))
		return
	}
	at, ok, err := robo.Seen.LastSeen(ctx, name)
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't read last seen", slog.Any("err", err))
		call.Reply(ctx, "something went wrong, sorry")
		return
	}
	if !ok {
		call.Reply(ctx, fmt.Sprintf("I've never seen %s", name))
		return
	}
	call.Reply(ctx, fmt.Sprintf("%s was last around %s ago", name, time.Since(at).Round(time.Minute)))
}

func cmdAFK(ctx context.Context, robo *Robot, call *Invocation) {
	reason := call.Rest
	if reason == "" {
		reason = "afk"
	}
	if err := robo.Seen.SetAFK(ctx, call.Caller.Username, reason, time.Now()); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't set afk", slog.Any("err", err))
		call.Reply(ctx, "something went wrong, sorry")
		return
	}
	call.Reply(ctx, "ok, you're afk: "+reason)
}

func cmdChannelTalk(ctx context.Context, robo *Robot, call *Invocation) {
	if call.Rest == "" {
		call.Reply(ctx, "ct <message>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	ch := robo.Settings.Current().Channel
	if err := conn.SendChannel(ctx, ch, call.Rest); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't relay to channel", slog.Any("err", err))
		call.Reply(ctx, "couldn't say that, sorry")
	}
}

func cmdRemindme(ctx context.Context, robo *Robot, call *Invocation) {
	msg, d, err := parseRemind(call.Args)
	if err != nil {
		call.Reply(ctx, `remindme "<message>" in <N> minutes|hours|days`)
		return
	}
	due := time.Now().Add(d)
	if _, err := robo.Reminders.Schedule(ctx, call.Caller.Username, msg, due); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't schedule reminder", slog.Any("err", err))
		call.Reply(ctx, "couldn't save that reminder, sorry")
		return
	}
	call.Reply(ctx, fmt.Sprintf("ok, I'll remind you in %v", d))
}

// parseRemind parses the remindme argument grammar:
// a quoted message, the word "in", a positive count, and a unit.
func parseRemind(args []string) (msg string, d time.Duration, err error) {
	if len(args) != 4 || !strings.EqualFold(args[1], "in") {
		return "", 0, errors.New("bad remindme invocation")
	}
	msg = args[0]
	if msg == "" {
		return "", 0, errors.New("empty reminder message")
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 {
		return "", 0, errors.New("bad reminder count")
	}
	switch strings.ToLower(strings.TrimSuffix(args[3], "s")) {
	case "minute", "min":
		d = time.Duration(n) * time.Minute
	case "hour":
		d = time.Duration(n) * time.Hour
	case "day":
		d = time.Duration(n) * 24 * time.Hour
	default:
		return "", 0, errors.New("bad reminder unit")
	}
	return msg, d, nil
}

// observe runs f and records its latency under the provider label.
func observe(ctx context.Context, robo *Robot, label string, f func(ctx context.Context) (string, error)) (string, error) {
	start := time.Now()
	r, err := f(ctx)
	robo.Metrics.ProviderLatency.Observe(time.Since(start).Seconds(), label)
	return r, err
}

func replyProviderError(ctx context.Context, robo *Robot, call *Invocation, what string, err error) {
	robo.Log.ErrorContext(ctx, "provider lookup failed", "provider", what, slog.Any("err", err))
	switch {
	case errors.Is(err, provider.ErrNotFound):
		call.Reply(ctx, "I couldn't find that")
	case errors.Is(err, provider.ErrRateLimited):
		call.Reply(ctx, "the "+what+" service is busy, try again in a bit")
	default:
		call.Reply(ctx, "the "+what+" lookup failed, sorry")
	}
}
