// Package provider implements lookups against third-party information
// services: weather, AI chat completion, news headlines, and URL shortening.
//
// Every lookup is a synchronous query returning text or an error from the
// shared taxonomy. Callers are expected to run lookups off the transport
// event loop and to surface failures to the requesting user.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"
)

// Errors distinguishing lookup failure modes. All are recovered locally by
// the dispatcher; none terminate the session.
var (
	// ErrNotFound indicates the provider has no answer for the input.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited indicates the provider refused the request for quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrProvider indicates any other provider-side failure.
	ErrProvider = errors.New("provider error")
)

// reqjson performs an HTTP request and decodes the response as JSON.
// The response body is truncated to 2 MB. Status codes map onto the error
// taxonomy: 404 to ErrNotFound, 429 to ErrRateLimited, any other non-2xx to
// ErrProvider.
func reqjson[Resp any](ctx context.Context, client *http.Client, method, url string, body io.Reader, u *Resp) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("couldn't make request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't %s: %w", method, err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("couldn't read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("request failed: %s (%w)", resp.Status, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("request failed: %s (%w)", resp.Status, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("request failed: %s %s (%w)", resp.Status, b, ErrProvider)
	}
	if err := json.Unmarshal(b, u); err != nil {
		return fmt.Errorf("couldn't decode JSON response: %w", err)
	}
	return nil
}

func withValues(base string, values url.Values) string {
	if len(values) == 0 {
		return base
	}
	return base + "?" + values.Encode()
}
