// Package llm talks to an OpenAI-compatible chat-completions endpoint
// and adapts its answers into the pipeline's typed results.
//
// Models are asked to answer with a JSON object inside a markdown code
// block; ExtractJSON digs it out before decoding. Token usage is
// returned alongside every call so runs can account for spend.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrBadResponse marks model answers that could not be decoded. Workers
// translate it into the run-specific error status.
var ErrBadResponse = errors.New("llm: undecodable model response")

// Config configures the chat-completions client.
type Config struct {
	// BaseURL of the API, e.g. "https://api.openai.com/v1" or a local
	// proxy. Required.
	BaseURL string

	// APIKey sent as a Bearer token. Empty = no Authorization header.
	APIKey string

	// Model name passed through to the endpoint. Required.
	Model string

	Temperature float64
	MaxTokens   int           // 0 = endpoint default
	Timeout     time.Duration // per request. Default: 120s.

	// Pricing per million tokens, for run cost accounting. 0 = free.
	InputCostPerMTok  float64
	OutputCostPerMTok float64

	Logger *slog.Logger
}

func (c *Config) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("llm: BaseURL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm: Model is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Usage is the token spend of one or more model calls.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add accumulates another usage into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.Cost += o.Cost
}

// Client is a minimal chat-completions client.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates the config and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one system+user exchange and returns the assistant
// text with its usage.
func (c *Client) Complete(ctx context.Context, system, user string) (string, Usage, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", Usage{}, fmt.Errorf("llm: decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if cr.Error != nil {
			msg = cr.Error.Message
		}
		return "", Usage{}, fmt.Errorf("llm: http %d: %s", resp.StatusCode, msg)
	}
	if len(cr.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("%w: no choices", ErrBadResponse)
	}

	usage := Usage{
		InputTokens:  cr.Usage.PromptTokens,
		OutputTokens: cr.Usage.CompletionTokens,
	}
	usage.Cost = float64(usage.InputTokens)/1e6*c.cfg.InputCostPerMTok +
		float64(usage.OutputTokens)/1e6*c.cfg.OutputCostPerMTok

	c.cfg.Logger.Debug("llm: completion",
		"model", c.cfg.Model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration", time.Since(start))

	return cr.Choices[0].Message.Content, usage, nil
}
