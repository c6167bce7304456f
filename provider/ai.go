package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"
)

// AI asks a hosted language model for a chat reply.
type AI struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Key is the API key. An empty key disables the provider.
	Key string
	// Model is the model name.
	Model string
	// Instruction is the system instruction prepended to every conversation.
	Instruction string
	// URL overrides the API base URL, mainly for tests.
	URL string
}

// Enabled reports whether the provider is configured.
func (a *AI) Enabled() bool { return a != nil && a.Key != "" }

// Turn is one prior message in a conversation.
type Turn struct {
	// Bot indicates the message was sent by the bot rather than a user.
	Bot bool
	// Text is the message text.
	Text string
}

type aiContent struct {
	Role  string   `json:"role,omitzero"`
	Parts []aiPart `json:"parts"`
}

type aiPart struct {
	Text string `json:"text"`
}

type aiRequest struct {
	Contents    []aiContent `json:"contents"`
	Instruction *aiContent  `json:"system_instruction,omitzero"`
}

type aiResponse struct {
	Candidates []struct {
		Content aiContent `json:"content"`
	} `json:"candidates"`
}

func (a *AI) base() string {
	if a.URL != "" {
		return a.URL
	}
	return "https://generativelanguage.googleapis.com/v1beta/models/" + a.Model + ":generateContent"
}

// Reply generates a reply to prompt given the prior conversation turns,
// oldest first.
func (a *AI) Reply(ctx context.Context, history []Turn, prompt string) (string, error) {
	req := aiRequest{}
	if a.Instruction != "" {
		req.Instruction = &aiContent{Parts: []aiPart{{Text: a.Instruction}}}
	}
	for _, t := range history {
		role := "user"
		if t.Bot {
			role = "model"
		}
		req.Contents = append(req.Contents, aiContent{Role: role, Parts: []aiPart{{Text: t.Text}}})
	}
	req.Contents = append(req.Contents, aiContent{Role: "user", Parts: []aiPart{{Text: prompt}}})
	body, err := json.Marshal(&req)
	if err != nil {
		return "", fmt.Errorf("couldn't encode completion request: %w", err)
	}
	u := withValues(a.base(), url.Values{"key": {a.Key}})
	var resp aiResponse
	if err := reqjson(ctx, a.HTTP, "POST", u, bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty completion (%w)", ErrProvider)
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text), nil
}
