package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// News looks up top headlines, optionally restricted to a topic.
type News struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Key is the API key. An empty key disables the provider.
	Key string
	// URL overrides the API base URL, mainly for tests.
	URL string
}

// Enabled reports whether the provider is configured.
func (n *News) Enabled() bool { return n != nil && n.Key != "" }

type newsResp struct {
	Articles []struct {
		Title  string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (n *News) base() string {
	if n.URL != "" {
		return n.URL
	}
	return "https://newsapi.org/v2/top-headlines"
}

// Top returns up to five current headlines. topic may be empty or "top" for
// unrestricted headlines.
func (n *News) Top(ctx context.Context, topic string) (string, error) {
	v := url.Values{
		"apiKey":   {n.Key},
		"pageSize": {"5"},
		"language": {"en"},
	}
	if topic != "" && !strings.EqualFold(topic, "top") {
		v.Set("q", topic)
	}
	var r newsResp
	if err := reqjson(ctx, n.HTTP, "GET", withValues(n.base(), v), nil, &r); err != nil {
		return "", err
	}
	if len(r.Articles) == 0 {
		return "", fmt.Errorf("no headlines for %q (%w)", topic, ErrNotFound)
	}
	var b strings.Builder
	b.WriteString("Headlines:")
	for i, a := range r.Articles {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, a.Title, a.Source.Name)
	}
	return b.String(), nil
}
