package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/molniya/usher/poll"
)

func cmdPoll(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) < 3 {
		call.Reply(ctx, `poll "<question>" "<option>" "<option>"...`)
		return
	}
	question, options := call.Args[0], call.Args[1:]
	id, err := robo.Polls.Create(ctx, question, options)
	if err != nil {
		if errors.Is(err, poll.ErrTooFewOptions) {
			call.Reply(ctx, "a poll needs at least two options")
			return
		}
		robo.Log.ErrorContext(ctx, "couldn't create poll", slog.Any("err", err))
		call.Reply(ctx, "couldn't create that poll, sorry")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "poll %d: %s", id, question)
	for i, o := range options {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, o)
	}
	fmt.Fprintf(&sb, "\nvote %d <option>", id)
	call.Reply(ctx, sb.String())
}

func cmdVote(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 2 {
		call.Reply(ctx, "vote <poll> <option>")
		return
	}
	id, err1 := strconv.ParseInt(call.Args[0], 10, 64)
	choice, err2 := strconv.Atoi(call.Args[1])
	if err1 != nil || err2 != nil {
		call.Reply(ctx, "vote <poll> <option>")
		return
	}
	// Options are numbered from one in chat.
	err := robo.Polls.Vote(ctx, id, call.Caller.Username, choice-1)
	switch {
	case errors.Is(err, poll.ErrNotFound):
		call.Reply(ctx, fmt.Sprintf("there is no poll %d", id))
	case errors.Is(err, poll.ErrBadOption):
		call.Reply(ctx, fmt.Sprintf("poll %d has no option %d", id, choice))
	case err != nil:
		robo.Log.ErrorContext(ctx, "couldn't record vote", slog.Any("err", err))
		call.Reply(ctx, "couldn't record your vote, sorry")
	default:
		call.Reply(ctx, fmt.Sprintf("your vote on poll %d is option %d", id, choice))
	}
}

func cmdResults(ctx context.Context, robo *Robot, call *Invocation) {
	if len(call.Args) != 1 {
		call.Reply(ctx, "results <poll>")
		return
	}
	id, err := strconv.ParseInt(call.Args[0], 10, 64)
	if err != nil {
		call.Reply(ctx, "results <poll>")
		return
	}
	q, err := robo.Polls.Question(ctx, id)
	if err != nil {
		if errors.Is(err, poll.ErrNotFound) {
			call.Reply(ctx, fmt.Sprintf("there is no poll %d", id))
			return
		}
		robo.Log.ErrorContext(ctx, "couldn't read poll", slog.Any("err", err))
		call.Reply(ctx, "couldn't read that poll, sorry")
		return
	}
	tally, err := robo.Polls.Tally(ctx, id)
	if err != nil {
		robo.Log.ErrorContext(ctx, "couldn't tally poll", slog.Any("err", err))
		call.Reply(ctx, "couldn't tally that poll, sorry")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "poll %d: %s", id, q)
	for i, r := range tally {
		fmt.Fprintf(&sb, "\n%d. %s: %d", i+1, r.Label, r.Votes)
	}
	call.Reply(ctx, sb.String())
}
