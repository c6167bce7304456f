package main_test

import (
	"context"
	_ "embed"
	"strings"
	"testing"

	main "github.com/molniya/usher"
)

//go:embed example.toml
var exampleToml string

func eqcase[T comparable](t *testing.T, name string, val T, eq T) {
	t.Helper()
	if val != eq {
		t.Errorf("wrong %s: want %#v, got %#v", name, eq, val)
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, _, err := main.Load(context.Background(), strings.NewReader(exampleToml))
	if err != nil {
		t.Errorf("failed to load example.toml: %v", err)
	}

	eqcase(t, "Server.URL", cfg.Server.URL, `wss://chat.example.org/ws`)
	eqcase(t, "Server.Username", cfg.Server.Username, `usher`)
	eqcase(t, "Server.SecretFile", cfg.Server.SecretFile, `/var/usher/password`)
	eqcase(t, "Server.Client", cfg.Server.Client, `usher`)
	eqcase(t, "Server.Timeout", cfg.Server.Timeout, 30.0)
	eqcase(t, "Bot.Nickname", cfg.Bot.Nickname, `Usher`)
	eqcase(t, "Bot.Status", cfg.Bot.Status, `at your service`)
	eqcase(t, "Bot.Channel", cfg.Bot.Channel, `/lobby`)
	eqcase(t, "Bot.Admins[0]", cfg.Bot.Admins[0], `molniya`)
	eqcase(t, "Bot.Admins[1]", cfg.Bot.Admins[1], `ostrov`)
	eqcase(t, "Bot.Prefix", cfg.Bot.Prefix, `/`)
	eqcase(t, "Filter.Words[0]", cfg.Filter.Words[0], `cucumber`)
	eqcase(t, "Filter.Enabled", cfg.Filter.Enabled, true)
	eqcase(t, "Filter.Threshold", cfg.Filter.Threshold, 3)
	eqcase(t, "DB.KV", cfg.DB.KV, `/var/usher/settings`)
	eqcase(t, "DB.SQL", cfg.DB.SQL, `file:/var/usher/state.db`)
	eqcase(t, "HTTP.Listen", cfg.HTTP.Listen, `:4959`)
	eqcase(t, "Rate.Every", cfg.Rate.Every, 1.5)
	eqcase(t, "Rate.Num", cfg.Rate.Num, 3)
	eqcase(t, "Reconnect.Min", cfg.Reconnect.Min, 2.0)
	eqcase(t, "Reconnect.Max", cfg.Reconnect.Max, 30.0)
	eqcase(t, "Reminders.Tick", cfg.Reminders.Tick, 15.0)
	eqcase(t, "Reminders.Attempts", cfg.Reminders.Attempts, 5)
	eqcase(t, "History.Turns", cfg.History.Turns, 10)
	eqcase(t, "History.Retention", cfg.History.Retention, 900.0)
	eqcase(t, "Providers.AI.Model", cfg.Providers.AI.Model, `gemini-1.5-flash`)
	eqcase(t, "Providers.AI.Instruction", cfg.Providers.AI.Instruction, `You are a helpful chat bot. Keep answers short.`)
	eqcase(t, "Greetings.Join[...]", cfg.Greetings.Join[`welcome, %s!`], 4)
	eqcase(t, "Greetings.Leave[...]", cfg.Greetings.Leave[`bye, %s`], 3)
}

func TestConfigDefaults(t *testing.T) {
	cfg, _, err := main.Load(context.Background(), strings.NewReader("[server]\nurl = \"wss://x/ws\"\n"))
	if err != nil {
		t.Fatalf("failed to load minimal config: %v", err)
	}
	eqcase(t, "Filter.Threshold", cfg.Filter.Threshold, 3)
	eqcase(t, "Reminders.Tick", cfg.Reminders.Tick, 15.0)
	eqcase(t, "Reminders.Attempts", cfg.Reminders.Attempts, 5)
	eqcase(t, "Reconnect.Min", cfg.Reconnect.Min, 2.0)
	eqcase(t, "Reconnect.Max", cfg.Reconnect.Max, 30.0)
	eqcase(t, "History.Turns", cfg.History.Turns, 10)
	eqcase(t, "Bot.Prefix", cfg.Bot.Prefix, `/`)
}

func TestConfigExpansion(t *testing.T) {
	t.Setenv("USHER_TEST_CHANNEL", "/backstage")
	cfg, _, err := main.Load(context.Background(), strings.NewReader("[bot]\nchannel = \"${USHER_TEST_CHANNEL}\"\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	eqcase(t, "Bot.Channel", cfg.Bot.Channel, `/backstage`)
}
