package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

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

// Bot is the bot.
type Bot struct {
	log      *slog.Logger
	cfg      *Config
	password string

	set       *settings.Store
	polls     *poll.Store
	reminders *reminder.Store
	filter    *filter.Filter
	seen      *seen.Store
	roster    roster.Roster
	hist      *history.History

	weather   *provider.Weather
	ai        *provider.AI
	news      *provider.News
	shortener *provider.Shortener

	metrics *metrics.Metrics

	joins  *pick.Dist[string]
	leaves *pick.Dist[string]

	// dial opens a connection to the server. Tests substitute it.
	dial dialFunc

	mu   sync.Mutex
	conn transport.Conn

	locked atomic.Bool
	rate   *rate.Limiter
	// works is the worker pool for command handlers and provider lookups.
	works chan chan func(context.Context)

	start time.Time
	// quit ends Run. It is set when Run starts.
	quit context.CancelFunc
}

// New assembles a Bot from its configuration and open databases.
func New(ctx context.Context, log *slog.Logger, cfg *Config, mets *metrics.Metrics, kv *badger.DB, sql *sqlitex.Pool) (*Bot, error) {
	password, err := loadPassword(cfg.Server.SecretFile)
	if err != nil {
		return nil, err
	}
	def := settings.Settings{
		Nickname:          cfg.Bot.Nickname,
		Status:            cfg.Bot.Status,
		Channel:           cfg.Bot.Channel,
		Admins:            cfg.Bot.Admins,
		FilterWords:       cfg.Filter.Words,
		FilterOn:          cfg.Filter.Enabled,
		AnnounceJoinLeave: true,
	}
	set, err := settings.Open(kv, def)
	if err != nil {
		return nil, err
	}
	polls, err := poll.Open(ctx, sql)
	if err != nil {
		return nil, err
	}
	rem, err := reminder.Open(ctx, sql)
	if err != nil {
		return nil, err
	}
	fil, err := filter.Open(ctx, sql, cfg.Filter.Threshold)
	if err != nil {
		return nil, err
	}
	sn, err := seen.Open(ctx, sql)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	b := &Bot{
		log:       log,
		cfg:       cfg,
		password:  password,
		set:       set,
		polls:     polls,
		reminders: rem,
		filter:    fil,
		seen:      sn,
		hist:      history.New(cfg.History.Turns, fseconds(cfg.History.Retention)),
		weather:   &provider.Weather{HTTP: client, Key: cfg.Providers.Weather.Key, URL: cfg.Providers.Weather.URL},
		ai: &provider.AI{
			HTTP:        client,
			Key:         cfg.Providers.AI.Key,
			Model:       cfg.Providers.AI.Model,
			Instruction: cfg.Providers.AI.Instruction,
			URL:         cfg.Providers.AI.URL,
		},
		news:      &provider.News{HTTP: client, Key: cfg.Providers.News.Key, URL: cfg.Providers.News.URL},
		shortener: &provider.Shortener{HTTP: client, URL: cfg.Providers.Shorten.URL},
		metrics:   mets,
		rate:      rate.NewLimiter(rate.Every(fseconds(cfg.Rate.Every)), cfg.Rate.Num),
		works:     make(chan chan func(context.Context), 8),
		start:     time.Now(),
	}
	b.dial = func(ctx context.Context, tcfg transport.Config) (transport.Conn, error) {
		return transport.Dial(ctx, client, tcfg)
	}
	if len(cfg.Greetings.Join) != 0 {
		b.joins = pick.New(pick.FromMap(cfg.Greetings.Join))
	}
	if len(cfg.Greetings.Leave) != 0 {
		b.leaves = pick.New(pick.FromMap(cfg.Greetings.Leave))
	}
	return b, nil
}

// Run serves the bot until ctx is canceled or the q command stops it.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.quit = cancel
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return b.session(ctx) })
	group.Go(func() error {
		err := b.reminders.Loop(ctx, fseconds(b.cfg.Reminders.Tick), b.cfg.Reminders.Attempts, b.deliverReminder)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if b.cfg.HTTP.Listen != "" {
		group.Go(func() error { return b.api(ctx, b.cfg.HTTP.Listen, http.NewServeMux(), b.metrics.Collectors()) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// connected returns the live connection, or nil while disconnected.
func (b *Bot) connected() transport.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

func (b *Bot) setConn(conn transport.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = conn
}

// restart drops the current connection. The session loop reconnects.
func (b *Bot) restart() {
	conn := b.connected()
	if conn != nil {
		conn.Close()
	}
}

// say sends text to a channel after waiting for the send rate limit.
func (b *Bot) say(ctx context.Context, channel, text string) error {
	if err := b.rate.Wait(ctx); err != nil {
		return err
	}
	conn := b.connected()
	if conn == nil {
		return errors.New("not connected")
	}
	return conn.SendChannel(ctx, channel, text)
}

// whisper sends a private message after waiting for the send rate limit.
func (b *Bot) whisper(ctx context.Context, to, text string) error {
	if err := b.rate.Wait(ctx); err != nil {
		return err
	}
	conn := b.connected()
	if conn == nil {
		return errors.New("not connected")
	}
	return conn.SendPrivate(ctx, to, text)
}

// deliverReminder sends a due reminder to its owner. While the bot is
// disconnected it reports ErrNotReady so that an outage doesn't burn the
// reminder's delivery attempts.
func (b *Bot) deliverReminder(ctx context.Context, r reminder.Reminder) error {
	if b.connected() == nil {
		return reminder.ErrNotReady
	}
	err := b.whisper(ctx, r.Owner, "reminder: "+r.Message)
	if err == nil {
		b.metrics.RemindersDelivered.Observe(1)
	}
	return err
}

// enqueue sends work to the worker pool.
func (b *Bot) enqueue(ctx context.Context, work func(context.Context)) {
	var w chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case w = <-b.works:
	default:
		w = make(chan func(context.Context), 1)
		go worker(ctx, b.works, w)
	}
	// Send it work.
	select {
	case <-ctx.Done():
		return
	case w <- work:
	}
}

// worker runs works for a while. The provided context is passed to each work.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			// Replace ourselves in the pool if it needs additional capacity.
			// Otherwise, we're done.
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}
