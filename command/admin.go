package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/molniya/usher/settings"
	"github.com/molniya/usher/transport"
)

func cmdRestart(ctx context.Context, robo *Robot, call *Invocation) {
	call.Reply(ctx, "restarting, back in a moment")
	robo.Restart()
}

func cmdQuit(ctx context.Context, robo *Robot, call *Invocation) {
	call.Reply(ctx, "bye")
	robo.Quit()
}

func cmdLock(ctx context.Context, robo *Robot, call *Invocation) {
	if robo.Locked.CompareAndSwap(false, true) {
		call.Reply(ctx, "locked")
		return
	}
	robo.Locked.Store(false)
	call.Reply(ctx, "unlocked")
}

func cmdBlock(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "block <command>")
		return
	}
	name := strings.ToLower(call.Args[0])
	if Find(name) == nil {
		call.Reply(ctx, "there is no command "+name)
		return
	}
	if name == "unblock" {
		// Blocking unblock would make the block-list permanent.
		call.Reply(ctx, "no")
		return
	}
	_, err := robo.Settings.Update(func(s *settings.Settings) {
		if !slices.Contains(s.Blocked, name) {
			s.Blocked = append(s.Blocked, name)
		}
	})
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist block-list", slog.Any("err", err))
	}
	call.Reply(ctx, name+" is blocked")
}

func cmdUnblock(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "unblock <command>")
		return
	}
	name := strings.ToLower(call.Args[0])
	_, err := robo.Settings.Update(func(s *settings.Settings) {
		s.Blocked = slices.DeleteFunc(s.Blocked, func(b string) bool { return b == name })
	})
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist block-list", slog.Any("err", err))
	}
	call.Reply(ctx, name+" is unblocked")
}

// target resolves a connected user by nick or username for moderation
// commands. It replies on failure and returns false.
func target(ctx context.Context, robo *Robot, call *Invocation, name string) (transport.User, string, bool) {
	m, ok := robo.Roster.Find(name)
	if !ok {
		call.Reply(ctx, name+" isn't connected")
		return transport.User{}, "", false
	}
	return m.User, m.Channel, true
}

func cmdKick(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "kick <nick>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	u, ch, ok := target(ctx, robo, call, call.Args[0])
	if !ok {
		return
	}
	if err := conn.Kick(ctx, u.ID, ch); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't kick", slog.Any("err", err), slog.String("user", u.Username))
		call.Reply(ctx, "couldn't kick "+u.Nickname)
		return
	}
	call.Reply(ctx, "kicked "+u.Nickname)
}

func cmdMove(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 2 {
		call.Reply(ctx, "move <nick> <path>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	u, _, ok := target(ctx, robo, call, call.Args[0])
	if !ok {
		return
	}
	path := call.Args[1]
	if err := conn.Move(ctx, u.ID, path); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't move", slog.Any("err", err), slog.String("user", u.Username))
		call.Reply(ctx, "couldn't move "+u.Nickname)
		return
	}
	call.Reply(ctx, fmt.Sprintf("moved %s to %s", u.Nickname, path))
}

func cmdBan(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "ban <nick>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	u, _, ok := target(ctx, robo, call, call.Args[0])
	if !ok {
		return
	}
	if err := conn.Ban(ctx, u.Username); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't ban", slog.Any("err", err), slog.String("user", u.Username))
		call.Reply(ctx, "couldn't ban "+u.Nickname)
		return
	}
	call.Reply(ctx, "banned "+u.Nickname)
}

func cmdUnban(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "unban <username>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	// Banned users aren't on the roster, so unban takes the account name.
	name := call.Args[0]
	if err := conn.Unban(ctx, name); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't unban", slog.Any("err", err), slog.String("user", name))
		call.Reply(ctx, "couldn't unban "+name)
		return
	}
	call.Reply(ctx, "unbanned "+name)
}

func cmdJoinChannel(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "jc <path>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	path := call.Args[0]
	if err := conn.Join(ctx, path); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't join channel", slog.Any("err", err), slog.String("channel", path))
		call.Reply(ctx, "couldn't join "+path)
		return
	}
	_, err := robo.Settings.Update(func(s *settings.Settings) { s.Channel = path })
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist channel", slog.Any("err", err))
	}
	call.Reply(ctx, "joined "+path)
}

func cmdToggleAnnounce(ctx context.Context, robo *Robot, call *Invocation) {
	s, err := robo.Settings.Update(func(s *settings.Settings) { s.AnnounceJoinLeave = !s.AnnounceJoinLeave })
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist announce toggle", slog.Any("err", err))
	}
	if s.AnnounceJoinLeave {
		call.Reply(ctx, "join/leave announcements on")
	} else {
		call.Reply(ctx, "join/leave announcements off")
	}
}

func cmdToggleFilter(ctx context.Context, robo *Robot, call *Invocation) {
	s, err := robo.Settings.Update(func(s *settings.Settings) { s.FilterOn = !s.FilterOn })
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist filter toggle", slog.Any("err", err))
	}
	if s.FilterOn {
		call.Reply(ctx, "word filter on")
	} else {
		call.Reply(ctx, "word filter off")
	}
}

func cmdFilterWords(ctx context.Context, robo *Robot, call *Invocation) {
	usage := "filter add|rm|list [word]"
	if len(call.Args) == 0 {
		call.Reply(ctx, usage)
		return
	}
	switch strings.ToLower(call.Args[0]) {
	case "list":
		s := robo.Settings.Current()
		if len(s.FilterWords) == 0 {
			call.Reply(ctx, "the filter list is empty")
			return
		}
		call.Reply(ctx, "filtered words: "+strings.Join(s.FilterWords, ", "))
	case "add":
		if len(call.Args) != 2 {
			call.Reply(ctx, usage)
			return
		}
		w := strings.ToLower(call.Args[1])
		_, err := robo.Settings.Update(func(s *settings.Settings) {
			if !slices.Contains(s.FilterWords, w) {
				s.FilterWords = append(s.FilterWords, w)
			}
		})
		if err != nil {
			robo.Log.ErrorContext(ctx, "couldn't persist filter words", slog.Any("err", err))
		}
		call.Reply(ctx, "added "+w)
	case "rm":
		if len(call.Args) != 2 {
			call.Reply(ctx, usage)
			return
		}
		w := strings.ToLower(call.Args[1])
		_, err := robo.Settings.Update(func(s *settings.Settings) {
			s.FilterWords = slices.DeleteFunc(s.FilterWords, func(v string) bool { return v == w })
		})
		if err != nil {
			robo.Log.ErrorContext(ctx, "couldn't persist filter words", slog.Any("err", err))
		}
		call.Reply(ctx, "removed "+w)
	default:
		call.Reply(ctx, usage)
	}
}

func cmdNickname(ctx context.Context, robo *Robot, call *Invocation) {
	if call.Rest == "" {
		call.Reply(ctx, "cn <nickname>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	if err := conn.SetNick(ctx, call.Rest); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't change nickname", slog.Any("err", err))
		call.Reply(ctx, "couldn't change nickname")
		return
	}
	_, err := robo.Settings.Update(func(s *settings.Settings) { s.Nickname = call.Rest })
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist nickname", slog.Any("err", err))
	}
	call.Reply(ctx, "now going by "+call.Rest)
}

func cmdStatus(ctx context.Context, robo *Robot, call *Invocation) {
	if call.Rest == "" {
		call.Reply(ctx, "cs <status>")
		return
	}
	conn := robo.Conn()
	if conn == nil {
		call.Reply(ctx, "not connected right now")
		return
	}
	if err := conn.SetStatus(ctx, call.Rest); err != nil {
		robo.Log.ErrorContext(ctx, "couldn't change status", slog.Any("err", err))
		call.Reply(ctx, "couldn't change status")
		return
	}
	_, err := robo.Settings.Update(func(s *settings.Settings) { s.Status = call.Rest })
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't persist status", slog.Any("err", err))
	}
	call.Reply(ctx, "status updated")
}
