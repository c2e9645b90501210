package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dailyjokes/internal/config"
	"dailyjokes/pkg/logger"
)

var (
	// ErrMissingAPIKey means no credential is configured; calling out is
	// pointless and the admin has to fix the deployment.
	ErrMissingAPIKey = errors.New("generator api key is not configured")
	// ErrInvalidAPIKey means the credential is malformed or was rejected
	// upstream; retrying will not help.
	ErrInvalidAPIKey = errors.New("generator api key was rejected")
	// ErrRateLimited means the upstream quota is exhausted; the caller may
	// try again later.
	ErrRateLimited = errors.New("generator rate limited")
)

// APIError covers the remaining upstream failures (5xx, malformed replies).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generator api error (status %d): %s", e.Status, e.Message)
}

// Generator produces joke text for a category through an OpenAI-compatible
// chat completions endpoint.
type Generator struct {
	cfg    config.GeneratorConfig
	client *http.Client
}

type Option func(*Generator)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) {
		g.client = client
	}
}

func New(cfg config.GeneratorConfig, opts ...Option) *Generator {
	g := &Generator{
		cfg: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate asks for count jokes in the named category and returns them as a
// list of strings. The credential is validated before any network call.
func (g *Generator) Generate(ctx context.Context, categoryName, description string, count int) ([]string, error) {
	if g.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if !strings.HasPrefix(g.cfg.APIKey, "sk-") {
		return nil, fmt.Errorf("%w: bad key format", ErrInvalidAPIKey)
	}
	if count <= 0 {
		count = 10
	}

	logger.Info("generating jokes",
		logger.String("category", categoryName),
		logger.Int("count", count),
	)

	payload := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a family-friendly comedian. Generate short, clean jokes suitable for all ages."},
			{Role: "user", Content: buildPrompt(categoryName, description, count)},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &APIError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAPIKey, upstreamMessage(respBody))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, upstreamMessage(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, &APIError{Status: resp.StatusCode, Message: upstreamMessage(respBody)}
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "unparseable response body"}
	}
	if len(chat.Choices) == 0 {
		return nil, &APIError{Status: resp.StatusCode, Message: "response contained no choices"}
	}

	jokes, err := parseJokeList(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	logger.Info("jokes generated",
		logger.String("category", categoryName),
		logger.Int("count", len(jokes)),
	)
	return jokes, nil
}

func buildPrompt(categoryName, description string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d unique, family-friendly jokes in the %q category.", count, categoryName)
	if description != "" {
		fmt.Fprintf(&b, " The category is about: %s.", description)
	}
	b.WriteString(` Return the response as a JSON list of strings, for example: ["Why don't skeletons fight each other? They don't have the guts."]`)
	return b.String()
}

func upstreamMessage(body []byte) string {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// parseJokeList turns raw model output into a clean list of joke strings.
// Markdown fencing is stripped first; if the remainder is not valid JSON the
// outermost bracket pair is tried once before giving up.
func parseJokeList(raw string) ([]string, error) {
	raw = stripFences(strings.TrimSpace(raw))

	var jokes []string
	if err := json.Unmarshal([]byte(raw), &jokes); err != nil {
		start := strings.Index(raw, "[")
		end := strings.LastIndex(raw, "]")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("parse generated jokes: %w", err)
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &jokes); err != nil {
			return nil, fmt.Errorf("parse generated jokes: %w", err)
		}
	}

	out := make([]string, 0, len(jokes))
	for _, joke := range jokes {
		joke = strings.TrimSpace(joke)
		if joke == "" {
			continue
		}
		out = append(out, joke)
	}
	if len(out) == 0 {
		return nil, errors.New("no jokes in generated response")
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		// Drop a language tag like "json" on the fence line.
		if !strings.Contains(s[:idx], "[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
