package command

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		prefix string
		want   *Request
	}{
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
		{
			name: "spaces",
			raw:  "   ",
			want: nil,
		},
		{
			name: "bare",
			raw:  "ping",
			want: &Request{Name: "ping"},
		},
		{
			name: "case",
			raw:  "PiNg",
			want: &Request{Name: "ping"},
		},
		{
			name: "args",
			raw:  "vote 3 1",
			want: &Request{Name: "vote", Args: []string{"3", "1"}, Rest: "3 1"},
		},
		{
			name: "rest-keeps-spacing",
			raw:  "w new   york",
			want: &Request{Name: "w", Args: []string{"new", "york"}, Rest: "new   york"},
		},
		{
			name: "quoted",
			raw:  `poll "favorite lunch?" "pizza" "tacos"`,
			want: &Request{Name: "poll", Args: []string{"favorite lunch?", "pizza", "tacos"}, Rest: `"favorite lunch?" "pizza" "tacos"`},
		},
		{
			name: "unterminated-quote",
			raw:  `remindme "water the plants in 5 minutes`,
			want: &Request{Name: "remindme", Args: []string{"water the plants in 5 minutes"}, Rest: `"water the plants in 5 minutes`},
		},
		{
			name: "bang",
			raw:  "!tfilter",
			want: &Request{Name: "tfilter"},
		},
		{
			name:   "prefix",
			raw:    "/vote 3 1",
			prefix: "/",
			want:   &Request{Name: "vote", Args: []string{"3", "1"}, Rest: "3 1"},
		},
		{
			name:   "prefix-missing",
			raw:    "vote 3 1",
			prefix: "/",
			want:   nil,
		},
		{
			name:   "channel-bang",
			raw:    "!poll \"q?\" \"a\" \"b\"",
			prefix: "/",
			want:   &Request{Name: "poll", Args: []string{"q?", "a", "b"}, Rest: `"q?" "a" "b"`},
		},
		{
			name:   "channel-bang-vote",
			raw:    "!vote 3 1",
			prefix: "/",
			want:   &Request{Name: "vote", Args: []string{"3", "1"}, Rest: "3 1"},
		},
		{
			name:   "channel-bang-only",
			raw:    "!",
			prefix: "/",
			want:   nil,
		},
		{
			name:   "prefix-only",
			raw:    "/",
			prefix: "/",
			want:   nil,
		},
		{
			name: "bang-then-args",
			raw:  "!time tokyo",
			want: &Request{Name: "time", Args: []string{"tokyo"}, Rest: "tokyo"},
		},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			got := Parse(c.raw, c.prefix)
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("wrong parse of %q (+got/-want):\n%s", c.raw, diff)
			}
		})
	}
}

func FuzzParse(f *testing.F) {
	f.Add("ping", "")
	f.Add("/vote 3 1", "/")
	f.Add(`poll "q" "a" "b"`, "")
	f.Add("!time tokyo", "/")
	f.Add(`remindme "unterminated`, "")
	f.Fuzz(func(t *testing.T, raw, prefix string) {
		r := Parse(raw, prefix)
		if r == nil {
			return
		}
		if r.Name == "" {
			t.Errorf("parsed empty name from %q", raw)
		}
		if r.Name != strings.ToLower(r.Name) {
			t.Errorf("name %q not lowercased", r.Name)
		}
		if strings.ContainsFunc(r.Name, func(c rune) bool { return c == ' ' || c == '\t' || c == '\n' }) {
			t.Errorf("name %q contains spaces", r.Name)
		}
	})
}

func TestParseRemind(t *testing.T) {
	cases := []struct {
		name string
		args []string
		msg  string
		d    time.Duration
		err  bool
	}{
		{name: "minutes", args: []string{"water the plants", "in", "5", "minutes"}, msg: "water the plants", d: 5 * time.Minute},
		{name: "minute", args: []string{"stretch", "in", "1", "minute"}, msg: "stretch", d: time.Minute},
		{name: "hours", args: []string{"check the oven", "in", "2", "hours"}, msg: "check the oven", d: 2 * time.Hour},
		{name: "days", args: []string{"rent", "in", "3", "days"}, msg: "rent", d: 72 * time.Hour},
		{name: "case", args: []string{"x", "IN", "1", "Hours"}, msg: "x", d: time.Hour},
		{name: "no-in", args: []string{"x", "at", "5", "minutes"}, err: true},
		{name: "zero", args: []string{"x", "in", "0", "minutes"}, err: true},
		{name: "negative", args: []string{"x", "in", "-2", "hours"}, err: true},
		{name: "not-a-number", args: []string{"x", "in", "five", "minutes"}, err: true},
		{name: "bad-unit", args: []string{"x", "in", "5", "fortnights"}, err: true},
		{name: "empty-message", args: []string{"", "in", "5", "minutes"}, err: true},
		{name: "short", args: []string{"x", "in", "5"}, err: true},
		{name: "none", args: nil, err: true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			msg, d, err := parseRemind(c.args)
			if c.err {
				if err == nil {
					t.Errorf("parseRemind(%q) should fail, got %q %v", c.args, msg, d)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRemind(%q): %v", c.args, err)
			}
			if msg != c.msg || d != c.d {
				t.Errorf("parseRemind(%q): want (%q, %v), got (%q, %v)", c.args, c.msg, c.d, msg, d)
			}
		})
	}
}
