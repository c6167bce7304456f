package command

import (
	"strings"
	"unicode"
)

// Request is a parsed command invocation.
type Request struct {
	// Name is the lowercased command name.
	Name string
	// Args is the arguments tokenized on spaces, with double-quoted
	// segments kept as single tokens. An unterminated quote runs to the
	// end of the input.
	Args []string
	// Rest is the raw text after the command name, trimmed.
	Rest string
}

// Parse parses a command invocation from raw message text. For channel
// messages, prefix is the required command prefix; '!' always works as an
// alternate prefix. Private messages pass an empty prefix, where a leading
// '!' is accepted and stripped. Parse returns nil if raw is not a command
// invocation.
func Parse(raw, prefix string) *Request {
	s := strings.TrimSpace(raw)
	if prefix != "" {
		t, ok := strings.CutPrefix(s, prefix)
		if !ok {
			t, ok = strings.CutPrefix(s, "!")
			if !ok {
				return nil
			}
		}
		s = t
	}
	s = strings.TrimPrefix(s, "!")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	name := s
	rest := ""
	if k := strings.IndexFunc(s, unicode.IsSpace); k >= 0 {
		name, rest = s[:k], strings.TrimSpace(s[k:])
	}
	return &Request{
		Name: strings.ToLower(name),
		Args: tokenize(rest),
		Rest: rest,
	}
}

// tokenize splits s on spaces, keeping double-quoted segments together. The
// quotes themselves are not part of the token.
func tokenize(s string) []string {
	var args []string
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return args
		}
		if s[0] == '"' {
			s = s[1:]
			k := strings.IndexByte(s, '"')
			if k < 0 {
				// Unterminated quote takes everything left.
				args = append(args, s)
				return args
			}
			args = append(args, s[:k])
			s = s[k+1:]
			continue
		}
		k := strings.IndexFunc(s, unicode.IsSpace)
		if k < 0 {
			args = append(args, s)
			return args
		}
		args = append(args, s[:k])
		s = s[k:]
	}
}
