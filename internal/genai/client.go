package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"elecmate/internal/config"
)

// ErrGenerationTimeout marks a call abandoned at the configured deadline.
// Generation is the only operation here with potentially unbounded latency,
// so the deadline is enforced per call rather than per connection.
var ErrGenerationTimeout = errors.New("text generation timed out")

// Generator is the narrow surface workflows depend on, so tests can swap in
// a canned implementation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client wraps the Ollama API client with a per-call deadline and bounded
// retries.
type Client struct {
	api     *api.Client
	model   string
	timeout time.Duration
	retries int
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.OllamaConfig) (*Client, error) {
	base, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout() + 5*time.Second}
	return &Client{
		api:     api.NewClient(base, httpClient),
		model:   cfg.Model,
		timeout: cfg.Timeout(),
		retries: cfg.MaxRetries,
	}, nil
}

// Generate runs one prompt through the model and returns the accumulated
// response text. Late results are discarded with the cancelled context.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ctxReq, cancel := context.WithTimeout(ctx, c.timeout)

		var out strings.Builder
		stream := false
		req := &api.GenerateRequest{
			Model:  c.model,
			Prompt: prompt,
			Stream: &stream,
		}
		err := c.api.Generate(ctxReq, req, func(r api.GenerateResponse) error {
			out.WriteString(r.Response)
			return nil
		})
		cancel()

		if err == nil {
			text := strings.TrimSpace(out.String())
			if text == "" {
				lastErr = errors.New("model returned empty response")
				continue
			}
			return text, nil
		}

		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = ErrGenerationTimeout
			continue
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("generate failed after retries: %w", lastErr)
}
