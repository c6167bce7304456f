package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Load loads Bot configuration from TOML.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	if cfg.Filter.Threshold <= 0 {
		cfg.Filter.Threshold = 3
	}
	if cfg.Reminders.Tick <= 0 {
		cfg.Reminders.Tick = 15
	}
	if cfg.Reminders.Attempts <= 0 {
		cfg.Reminders.Attempts = 5
	}
	if cfg.Reconnect.Min <= 0 {
		cfg.Reconnect.Min = 2
	}
	if cfg.Reconnect.Max < cfg.Reconnect.Min {
		cfg.Reconnect.Max = cfg.Reconnect.Min + 28
	}
	if cfg.History.Turns <= 0 {
		cfg.History.Turns = 10
	}
	if cfg.History.Retention <= 0 {
		cfg.History.Retention = 900
	}
	if cfg.Bot.Prefix == "" {
		cfg.Bot.Prefix = "/"
	}
	return &cfg, &md, nil
}

// loadPassword reads the server password from the configured secret file.
func loadPassword(file string) (string, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("couldn't read server password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// loadDBs opens the settings KV store and the feature state database.
func loadDBs(cfg DBCfg) (kv *badger.DB, sql *sqlitex.Pool, err error) {
	opts := badger.DefaultOptions(cfg.KV)
	opts = opts.WithLogger(nil)
	opts = opts.WithCompression(options.None)
	opts = opts.WithBloomFalsePositive(0)
	kv, err = badger.Open(opts.FromSuperFlag(cfg.KVFlag))
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open settings db: %w", err)
	}
	sql, err = sqlitex.NewPool(cfg.SQL, sqlitex.PoolOptions{})
	if err != nil {
		kv.Close()
		return nil, nil, fmt.Errorf("couldn't open state db: %w", err)
	}
	return kv, sql, nil
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// Server is the table of connection settings.
	Server ServerCfg `toml:"server"`
	// Bot is the table of bot identity settings. These are defaults; an
	// admin can change them at runtime, and the changed values persist.
	Bot BotCfg `toml:"bot"`
	// Filter is the word filter configuration.
	Filter FilterCfg `toml:"filter"`
	// DB is the table of database paths.
	DB DBCfg `toml:"db"`
	// HTTP is the operator HTTP API configuration.
	HTTP HTTPCfg `toml:"http"`
	// Rate is the outbound message rate limit.
	Rate Rate `toml:"rate"`
	// Reconnect is the reconnect backoff window.
	Reconnect ReconnectCfg `toml:"reconnect"`
	// Reminders is the reminder delivery configuration.
	Reminders RemindersCfg `toml:"reminders"`
	// History is the assistant conversation history configuration.
	History HistoryCfg `toml:"history"`
	// Providers is the table of external lookup services.
	Providers ProvidersCfg `toml:"providers"`
	// Greetings is the weighted join/leave announcement variants.
	Greetings GreetingsCfg `toml:"greetings"`
}

// ServerCfg is the chat server connection configuration.
type ServerCfg struct {
	// URL is the websocket URL of the server.
	URL string `toml:"url"`
	// Username is the bot's account name.
	Username string `toml:"username"`
	// SecretFile is the path to a file containing the account password.
	SecretFile string `toml:"secret"`
	// Client is the client name reported at login.
	Client string `toml:"client"`
	// Timeout is the per-operation I/O timeout in seconds.
	Timeout float64 `toml:"timeout"`
}

// BotCfg is the bot's default identity.
type BotCfg struct {
	// Nickname is the display name.
	Nickname string `toml:"nickname"`
	// Status is the status message.
	Status string `toml:"status"`
	// Channel is the channel the bot joins after login.
	Channel string `toml:"channel"`
	// Admins is the list of admin account names.
	Admins []string `toml:"admins"`
	// Prefix is the command prefix required in channel messages.
	Prefix string `toml:"prefix"`
}

// FilterCfg is the word filter defaults.
type FilterCfg struct {
	// Words is the initial filtered word list.
	Words []string `toml:"words"`
	// Enabled turns the filter on at first start.
	Enabled bool `toml:"enabled"`
	// Threshold is the consecutive violation count that earns a kick.
	Threshold int `toml:"threshold"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	// KV is the path to the settings store.
	KV string `toml:"kv"`
	// KVFlag is a badger superflag for tuning the settings store.
	KVFlag string `toml:"kvflag"`
	// SQL is the DSN of the feature state database.
	SQL string `toml:"sql"`
}

// HTTPCfg is the HTTP configuration.
type HTTPCfg struct {
	// Listen is the address on which to serve the operator API.
	Listen string `toml:"listen"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

// ReconnectCfg is the reconnect backoff window in seconds.
type ReconnectCfg struct {
	Min float64 `toml:"min"`
	Max float64 `toml:"max"`
}

// RemindersCfg is the reminder delivery configuration.
type RemindersCfg struct {
	// Tick is the delivery poll interval in seconds.
	Tick float64 `toml:"tick"`
	// Attempts is the delivery attempt bound per reminder.
	Attempts int `toml:"attempts"`
}

// HistoryCfg is the assistant conversation history configuration.
type HistoryCfg struct {
	// Turns is the number of turns kept per conversation.
	Turns int `toml:"turns"`
	// Retention is how long a turn stays relevant, in seconds.
	Retention float64 `toml:"retention"`
}

// ProvidersCfg is the table of external lookup services.
type ProvidersCfg struct {
	Weather WeatherCfg `toml:"weather"`
	AI      AICfg      `toml:"ai"`
	News    NewsCfg    `toml:"news"`
	Shorten ShortenCfg `toml:"shorten"`
}

// WeatherCfg configures the weather provider.
type WeatherCfg struct {
	Key string `toml:"key"`
	URL string `toml:"url"`
}

// AICfg configures the assistant provider.
type AICfg struct {
	Key string `toml:"key"`
	// Model is the generative model name.
	Model string `toml:"model"`
	// Instruction is the system instruction prepended to every prompt.
	Instruction string `toml:"instruction"`
	URL         string `toml:"url"`
}

// NewsCfg configures the headlines provider.
type NewsCfg struct {
	Key string `toml:"key"`
	URL string `toml:"url"`
}

// ShortenCfg configures the link shortener.
type ShortenCfg struct {
	URL string `toml:"url"`
}

// GreetingsCfg is the weighted join/leave announcement variants. Each value
// maps a format string with one %s verb for the nickname to its weight.
type GreetingsCfg struct {
	Join  map[string]int `toml:"join"`
	Leave map[string]int `toml:"leave"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.Server.URL,
		&cfg.Server.Username,
		&cfg.Server.SecretFile,
		&cfg.Bot.Nickname,
		&cfg.Bot.Status,
		&cfg.Bot.Channel,
		&cfg.DB.KV,
		&cfg.DB.KVFlag,
		&cfg.DB.SQL,
		&cfg.HTTP.Listen,
		&cfg.Providers.Weather.Key,
		&cfg.Providers.AI.Key,
		&cfg.Providers.News.Key,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for i, s := range cfg.Bot.Admins {
		cfg.Bot.Admins[i] = os.Expand(s, expand)
	}
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
