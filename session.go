package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/molniya/usher/transport"
)

// dialFunc opens a connection to the chat server.
type dialFunc func(ctx context.Context, cfg transport.Config) (transport.Conn, error)

// session dials the server and serves events until ctx is canceled,
// reconnecting with a randomized backoff whenever the connection drops.
// Authentication failures are fatal; no other error ends the loop.
func (b *Bot) session(ctx context.Context) error {
	for first := true; ; first = false {
		if !first {
			if err := b.backoff(ctx); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s := b.set.Current()
		conn, err := b.dial(ctx, transport.Config{
			URL:        b.cfg.Server.URL,
			Username:   b.cfg.Server.Username,
			Password:   b.password,
			Nickname:   s.Nickname,
			ClientName: b.cfg.Server.Client,
			Timeout:    fseconds(b.cfg.Server.Timeout),
		})
		if err != nil {
			var auth *transport.AuthError
			if errors.As(err, &auth) {
				b.log.ErrorContext(ctx, "login rejected", slog.String("reason", auth.Reason))
				return err
			}
			b.log.ErrorContext(ctx, "couldn't connect", slog.Any("err", err))
			continue
		}
		b.metrics.ReconnectCount.Observe(1)
		b.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// serve applies the persisted identity to a fresh connection and pumps its
// events until it drops.
func (b *Bot) serve(ctx context.Context, conn transport.Conn) {
	defer func() {
		b.setConn(nil)
		b.roster.Reset()
		conn.Close()
	}()
	s := b.set.Current()
	// Nickname went with the login; status and channel are reapplied here so
	// runtime changes survive a reconnect.
	if s.Status != "" {
		if err := conn.SetStatus(ctx, s.Status); err != nil {
			b.log.WarnContext(ctx, "couldn't set status", slog.Any("err", err))
		}
	}
	if s.Channel != "" {
		if err := conn.Join(ctx, s.Channel); err != nil {
			b.log.WarnContext(ctx, "couldn't join channel", slog.Any("err", err), slog.String("channel", s.Channel))
		}
	}
	b.setConn(conn)
	b.log.InfoContext(ctx, "connected", slog.String("channel", s.Channel))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				b.log.ErrorContext(ctx, "connection lost", slog.Any("err", conn.Err()))
				return
			}
			b.metrics.EventsCount.Observe(1)
			b.dispatch(ctx, ev)
		}
	}
}

// backoff waits a random duration within the configured reconnect window,
// checking for cancellation every second.
func (b *Bot) backoff(ctx context.Context) error {
	lo, hi := fseconds(b.cfg.Reconnect.Min), fseconds(b.cfg.Reconnect.Max)
	d := lo
	if hi > lo {
		d += rand.N(hi - lo)
	}
	b.log.InfoContext(ctx, "reconnecting", slog.Duration("wait", d))
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second): // do nothing
		}
	}
	return nil
}
