// Package gemini sends prompts to the Gemini generateContent endpoint
// through the retrying executor.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jzx17/genproxy/pkg/retry"
	"github.com/jzx17/genproxy/pkg/types"
)

const (
	// DefaultBaseURL is the public generative-language API root
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is the model used when none is configured
	DefaultModel = "gemini-2.5-flash"

	// textPath locates the generated text in a generateContent response
	textPath = "candidates.0.content.parts.0.text"

	// DefaultMaxResponseSize bounds a 2xx body read from the upstream
	DefaultMaxResponseSize = 10 << 20
)

// Client calls generateContent for one model with a server-held API key.
// It is safe for concurrent use.
type Client struct {
	baseURL      string
	model        string
	apiKey       string
	executor     *retry.Executor
	maxAttempts  int
	maxResponse  int64
	systemPrompt string
	logger       *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API root, mostly for tests
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel sets the model name
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithExecutor sets the executor used for outbound calls
func WithExecutor(executor *retry.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

// WithMaxAttempts sets how many calls a single request may make
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithMaxResponseSize sets the largest 2xx body the client accepts
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		c.maxResponse = n
	}
}

// WithDefaultSystemPrompt sets the system instruction Forward adds to
// payloads that do not carry one
func WithDefaultSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client. An empty apiKey is accepted: every call then
// fails with ErrMissingAPIKey without reaching the network.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		apiKey:      apiKey,
		maxAttempts: retry.DefaultMaxAttempts,
		maxResponse: DefaultMaxResponseSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.executor == nil {
		c.executor = retry.NewExecutor(nil)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// HasAPIKey reports whether a key is configured
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the generateContent URL, API key included
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
}

// Generate sends req and returns the first candidate's text
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if !c.HasAPIKey() {
		return "", ErrMissingAPIKey
	}
	if len(req.Contents) == 0 {
		return "", types.InvalidInputf("request has no contents")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	data, err := c.call(ctx, body)
	if err != nil {
		return "", err
	}

	text := gjson.GetBytes(data, textPath)
	if text.Type != gjson.String || text.String() == "" {
		return "", ErrMalformedResponse
	}
	return text.String(), nil
}

// Forward sends a caller-built generateContent payload and returns the raw
// upstream JSON. The payload must be a JSON object with a contents array.
func (c *Client) Forward(ctx context.Context, payload []byte) ([]byte, error) {
	if !c.HasAPIKey() {
		return nil, ErrMissingAPIKey
	}
	if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		return nil, types.InvalidInputf("payload must be a JSON object")
	}
	if !gjson.GetBytes(payload, "contents").IsArray() {
		return nil, types.InvalidInputf("payload must contain a contents array")
	}

	if c.systemPrompt != "" && !gjson.GetBytes(payload, "systemInstruction").Exists() {
		raw, err := json.Marshal(systemInstruction(c.systemPrompt))
		if err != nil {
			return nil, fmt.Errorf("marshal system instruction: %w", err)
		}
		payload, err = sjson.SetRawBytes(payload, "systemInstruction", raw)
		if err != nil {
			return nil, fmt.Errorf("set system instruction: %w", err)
		}
	}

	return c.call(ctx, payload)
}

// call runs one request through the executor and returns the 2xx body.
// Error objects in the body are reported as *APIError.
func (c *Client) call(ctx context.Context, body []byte) ([]byte, error) {
	desc := retry.NewRequestDescriptor(c.Endpoint(), body)

	c.logger.DebugContext(ctx, "Calling Gemini",
		slog.String("model", c.model),
		slog.String("url", desc.Redacted()),
		slog.Int("bytes", len(body)))

	resp, err := c.executor.Execute(ctx, desc, c.maxAttempts)
	if err != nil {
		var statusErr *retry.UpstreamStatusError
		if errors.As(err, &statusErr) {
			if apiErr := parseAPIError([]byte(statusErr.Body), statusErr.StatusCode); apiErr != nil {
				apiErr.Code = statusErr.StatusCode
				apiErr.Err = err
				return nil, apiErr
			}
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxResponse {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxResponse)
	}

	if apiErr := parseAPIError(data, defaultErrorCode); apiErr != nil {
		return nil, apiErr
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedResponse
	}

	return data, nil
}
