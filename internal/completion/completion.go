// Package completion turns a system/user prompt pair into raw model text.
//
// Providers differ in transport and response schema; every provider funnels
// its raw response body through Extract so that canonical, string-only and
// oddly shaped JSON bodies are all handled the same way.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Misty-Star/Speak2SQL/internal/observability"
)

const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 1000
	defaultTimeout     = 60 * time.Second
)

var (
	ErrEmptyCompletion = errors.New("completion returned no content")
	ErrMissingAPIKey   = errors.New("api key is required")
)

type Request struct {
	SystemPrompt string
	UserPrompt   string
}

type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
	Model() string
}

type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Model = strings.TrimSpace(c.Model)
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// New builds the provider named by cfg.Provider, wrapped with logging and
// metrics.
func New(cfg Config) (Provider, error) {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case "openai":
		provider, err = newOpenAIProvider(cfg)
	case "anthropic":
		provider, err = newAnthropicProvider(cfg)
	case "ollama":
		provider, err = newOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{next: provider, logger: observability.OrDiscard(cfg.Logger)}, nil
}

type instrumented struct {
	next   Provider
	logger *slog.Logger
}

func (p *instrumented) Name() string  { return p.next.Name() }
func (p *instrumented) Model() string { return p.next.Model() }

func (p *instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := p.next.Complete(ctx, req)
	if err == nil {
		text = StripReasoning(text)
		if strings.TrimSpace(text) == "" {
			err = ErrEmptyCompletion
		}
	}
	elapsed := time.Since(start)
	observability.ObserveCompletion(p.next.Name(), elapsed, err)
	if err != nil {
		p.logger.WarnContext(ctx, "completion failed",
			slog.String("provider", p.next.Name()),
			slog.String("model", p.next.Model()),
			slog.String("duration", elapsed.String()),
			slog.Any("error", err),
		)
		return "", err
	}
	p.logger.DebugContext(ctx, "completion finished",
		slog.String("provider", p.next.Name()),
		slog.String("model", p.next.Model()),
		slog.String("duration", elapsed.String()),
		slog.Int("chars", len(text)),
	)
	return text, nil
}

const pingPrompt = "Connection test. Reply with the single word OK."

// Ping sends a trivial prompt and returns the model's reply.
func Ping(ctx context.Context, provider Provider) (string, error) {
	reply, err := provider.Complete(ctx, Request{UserPrompt: pingPrompt})
	if err != nil {
		return "", fmt.Errorf("ping %s: %w", provider.Name(), err)
	}
	return strings.TrimSpace(reply), nil
}
