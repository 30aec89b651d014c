// Package genai generates coaching replies through Gemini's OpenAI-compatible chat endpoint.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for the Gemini endpoint.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 30 * time.Second
)

// ErrUpstreamUnavailable means no reply could be generated: the key is missing or a placeholder,
// the provider failed, or it returned nothing usable. Callers fall back to a template reply.
var ErrUpstreamUnavailable = errors.New("ai provider unavailable")

// completer is the part of openai.ChatCompletionService the client needs.
type completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Role of a conversation turn.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Turn is one earlier message passed to the model as context.
type Turn struct {
	Role Role
	Text string
}

// Prompt is a fully rendered request.
type Prompt struct {
	System  string
	History []Turn
	User    string
}

// Client generates replies. A nil *Client always reports ErrUpstreamUnavailable.
type Client struct {
	chat        completer
	model       string
	temperature float64
	timeout     time.Duration
}

// Opts configures a Client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Option mutates Opts.
type Option func(*Opts)

// WithAPIKey sets the Gemini API key.
func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func WithBaseURL(url string) Option { return func(o *Opts) { o.BaseURL = url } }

// WithModel selects the model name.
func WithModel(model string) Option { return func(o *Opts) { o.Model = model } }

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option { return func(o *Opts) { o.Temperature = t } }

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option { return func(o *Opts) { o.Timeout = d } }

// NewClient builds a client. A missing or placeholder key returns ErrUpstreamUnavailable so the
// caller can run in template-only mode.
func NewClient(opts ...Option) (*Client, error) {
	o := Opts{BaseURL: DefaultBaseURL, Model: DefaultModel, Temperature: 0.7, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if IsPlaceholderKey(o.APIKey) {
		slog.Warn("genai.NewClient: no usable API key, AI replies disabled")
		return nil, fmt.Errorf("%w: API key not configured", ErrUpstreamUnavailable)
	}

	cli := openai.NewClient(option.WithAPIKey(o.APIKey), option.WithBaseURL(o.BaseURL))
	slog.Debug("genai.NewClient: client ready", "baseURL", o.BaseURL, "model", o.Model)
	return &Client{chat: &cli.Chat.Completions, model: o.Model, temperature: o.Temperature, timeout: o.Timeout}, nil
}

// IsPlaceholderKey reports whether key is empty or an obvious template value.
func IsPlaceholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case k == "", k == "changeme", k == "placeholder", k == "xxx":
		return true
	case strings.HasPrefix(k, "your") && strings.Contains(k, "key"):
		return true
	}
	return false
}

// GenerateReply returns the model's reply to p.
func (c *Client) GenerateReply(ctx context.Context, p Prompt) (string, error) {
	if c == nil || c.chat == nil {
		return "", ErrUpstreamUnavailable
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    buildMessages(p),
		Temperature: openai.Float(c.temperature),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("Client.GenerateReply: completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Error("Client.GenerateReply: no choices returned", "model", c.model)
		return "", fmt.Errorf("%w: no choices returned", ErrUpstreamUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		slog.Error("Client.GenerateReply: empty reply", "model", c.model)
		return "", fmt.Errorf("%w: empty reply", ErrUpstreamUnavailable)
	}
	slog.Debug("Client.GenerateReply: reply generated", "model", c.model, "length", len(text))
	return text, nil
}

func buildMessages(p Prompt) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.History)+2)
	if p.System != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	for _, t := range p.History {
		if t.Text == "" {
			continue
		}
		if t.Role == RoleAI {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	if p.User != "" {
		msgs = append(msgs, openai.UserMessage(p.User))
	}
	return msgs
}
