package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint  = "https://router.huggingface.co/v1"
	DefaultModel     = "meta-llama/Llama-3.2-3B-Instruct"
	DefaultMaxTokens = 2048
	DefaultTimeout   = 120 * time.Second

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 2048
)

// Config configures a Client.
type Config struct {
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// RequestsPerSecond throttles calls to the backend. Zero disables throttling.
	RequestsPerSecond float64
}

// Client talks to an OpenAI-compatible chat completions API. It holds no
// conversation state and is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

// Request represents a chat completions request
type Request struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

// Response represents a chat completions response
type Response struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// New creates a new client, filling unset fields with defaults.
func New(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Model returns the default model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends the whole conversation and returns the text of the first
// choice. A null content is returned as the empty string.
func (c *Client) Complete(ctx context.Context, messages []types.Message, opts types.CompletionOptions) (string, error) {
	req := Request{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      false,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &types.LLMError{Operation: "rate limit", Message: "wait cancelled", Err: err}
		}
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", &types.LLMError{Operation: "decode", Message: "response has no choices"}
	}
	content := resp.Choices[0].Message.Content
	if content == nil {
		return "", nil
	}
	return *content, nil
}

// sendRequest posts a request to the chat completions endpoint
func (c *Client) sendRequest(ctx context.Context, req Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, &types.LLMError{Operation: "encode", Message: "failed to marshal request", Err: err}
	}

	endpoint := c.cfg.Endpoint + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &types.LLMError{Operation: "request", Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &types.LLMError{Operation: "request", Message: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"model":       req.Model,
		"messages":    len(req.Messages),
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("chat completion returned")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &types.LLMError{
			Operation:  "request",
			Message:    fmt.Sprintf("unexpected status code: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body))),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.LLMError{Operation: "decode", Message: "failed to read response body", Err: err}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &types.LLMError{Operation: "decode", Message: "failed to decode response", Err: err}
	}
	return &out, nil
}
