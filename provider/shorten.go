package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrInvalidURL indicates the input to Shorten was not an absolute URL.
var ErrInvalidURL = errors.New("invalid url")

// Shortener creates short URLs through a redirection service.
// The service replies with the short URL as plain text.
type Shortener struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// URL overrides the API base URL, mainly for tests.
	URL string
}

func (s *Shortener) base() string {
	if s.URL != "" {
		return s.URL
	}
	return "https://tinyurl.com/api-create.php"
}

// Shorten returns a short URL redirecting to long.
func (s *Shortener) Shorten(ctx context.Context, long string) (string, error) {
	u, err := url.Parse(long)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%q: %w", long, ErrInvalidURL)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", withValues(s.base(), url.Values{"url": {long}}), nil)
	if err != nil {
		return "", fmt.Errorf("couldn't make request: %w", err)
	}
	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't shorten: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("couldn't read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shorten failed: %s (%w)", resp.Status, ErrProvider)
	}
	short := strings.TrimSpace(string(b))
	if short == "" {
		return "", fmt.Errorf("empty short url (%w)", ErrProvider)
	}
	return short, nil
}
