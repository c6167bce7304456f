package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotReady indicates delivery is impossible right now for reasons
// unrelated to the reminder, such as the bot being disconnected. The
// delivery pass stops and no attempt is counted; the attempt bound is for
// reminders that fail on their own.
var ErrNotReady = errors.New("delivery not ready")

// DeliverFunc delivers a reminder to its owner. A non-nil error causes the
// reminder to be retried on the next tick, up to the scheduler's attempt
// bound, except for ErrNotReady.
type DeliverFunc func(ctx context.Context, r Reminder) error

// Loop delivers due reminders once per interval until ctx is done. The first
// pass runs immediately so that reminders which matured while the process was
// down go out right away. A reminder whose delivery fails maxAttempts times
// is abandoned.
func (s *Store) Loop(ctx context.Context, interval time.Duration, maxAttempts int, deliver DeliverFunc) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.tick(ctx, maxAttempts, deliver)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C: // do nothing
		}
	}
}

// tick runs one delivery pass.
func (s *Store) tick(ctx context.Context, maxAttempts int, deliver DeliverFunc) {
	due, err := s.Due(ctx, time.Now())
	if err != nil {
		slog.ErrorContext(ctx, "couldn't collect due reminders", slog.Any("err", err))
		return
	}
	for _, r := range due {
		if ctx.Err() != nil {
			return
		}
		if err := deliver(ctx, r); err != nil {
			if errors.Is(err, ErrNotReady) {
				slog.WarnContext(ctx, "delivery not ready; holding due reminders", slog.Any("err", err))
				return
			}
			n, ferr := s.Failed(ctx, r.ID)
			if ferr != nil {
				slog.ErrorContext(ctx, "couldn't record failed delivery",
					slog.Any("err", ferr),
					slog.String("id", r.ID),
				)
				continue
			}
			if n >= maxAttempts {
				slog.ErrorContext(ctx, "abandoning undeliverable reminder",
					slog.Any("err", err),
					slog.String("id", r.ID),
					slog.String("owner", r.Owner),
					slog.Int("attempts", n),
				)
				if err := s.Abandon(ctx, r.ID); err != nil {
					slog.ErrorContext(ctx, "couldn't abandon reminder", slog.Any("err", err), slog.String("id", r.ID))
				}
				continue
			}
			slog.WarnContext(ctx, "reminder delivery failed; will retry",
				slog.Any("err", err),
				slog.String("id", r.ID),
				slog.Int("attempts", n),
			)
			continue
		}
		if err := s.Delivered(ctx, r.ID); err != nil {
			// The reminder will be delivered again on the next tick.
			// At-least-once is the contract.
			slog.ErrorContext(ctx, "couldn't mark reminder delivered", slog.Any("err", err), slog.String("id", r.ID))
		}
	}
}
