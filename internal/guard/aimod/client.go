// Package aimod calls an OpenRouter chat-completion endpoint to classify
// group messages that slipped past the lexicon. The classifier is advisory:
// any transport or parse failure yields no decision rather than an error, so
// the moderation pipeline never stalls on it.
package aimod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"guardbot/common/retry"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4o-mini"
	defaultTimeout = 8 * time.Second

	maxReasonLen = 160
)

// Decision is the structured classifier verdict.
type Decision struct {
	IsProhibited bool    `json:"is_prohibited"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

// Config configures the OpenRouter client.
type Config struct {
	// APIKey is the bearer token. When empty the client is disabled and
	// Classify always returns nil.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to the OpenRouter API.
	BaseURL string

	// Model is the chat model. Defaults to openai/gpt-4o-mini.
	Model string

	// Timeout is the per-request deadline. Defaults to 8 s.
	Timeout time.Duration

	// Labels is the comma-separated accept set embedded in the prompt.
	Labels string
}

// Client is a moderation classifier backed by an OpenAI-compatible chat API.
// Safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

// New returns a classifier client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You are a content moderation classifier. Return ONLY valid JSON. No markdown."

const userPromptTmpl = "Your task is NOT to flag mentions alone. " +
	"You must determine whether the message PROMOTES, ENCOURAGES, or ADVERTISES prohibited content.\n" +
	"Important rules:\n" +
	"- If gambling/scam is mentioned ONLY to criticize, complain, warn, or discuss negatively, it is NOT prohibited.\n" +
	"- Mention without promotion = allowed.\n" +
	"- Promotion, encouragement, instruction, or advertisement = prohibited.\n" +
	"Classify the following message (Uzbek/Russian possible). " +
	"Detect prohibited topics: gambling/1xBet/betting/casino, or fraud/scam/deception/fake investment. " +
	"Allowed labels: %s.\n\n" +
	`Return JSON with schema: {"is_prohibited": boolean, "label": "gambling"|"fraud"|"other"|"none", ` +
	`"confidence": number, "reason": string(must be in uzbek)}` + "\n\n" +
	"Message: %s"

// Classify submits the text for classification. It returns nil (never an
// error) when the client is unconfigured, the call fails after one retry, or
// the response does not match the expected schema.
func (c *Client) Classify(ctx context.Context, text string) *Decision {
	if c.cfg.APIKey == "" {
		return nil
	}

	var decision *Decision
	err := retry.Do(ctx, retry.Config{MaxAttempts: 2, Delay: 500 * time.Millisecond}, func() error {
		d, err := c.classifyOnce(ctx, text)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	if err != nil {
		slog.Error("ai moderation request failed", "err", err)
		return nil
	}
	return decision
}

func (c *Client) classifyOnce(ctx context.Context, text string) (*Decision, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTmpl, c.cfg.Labels, text)},
		},
		Temperature: 0,
		MaxTokens:   200,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("aimod: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("aimod: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aimod: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("aimod: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aimod: http status %d: %.200s", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("aimod: decode api response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("aimod: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("aimod: no choices returned")
	}

	content := parsed.Choices[0].Message.Content
	var decision Decision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return nil, fmt.Errorf("aimod: decode decision: %w (raw content: %.200s)", err, content)
	}
	if runes := []rune(decision.Reason); len(runes) > maxReasonLen {
		decision.Reason = string(runes[:maxReasonLen])
	}
	if decision.Label == "" {
		decision.Label = "none"
	}
	return &decision, nil
}
