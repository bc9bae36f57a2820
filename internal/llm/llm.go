// Package llm adapts the Genkit model runtime to the narrow generation and
// classification contracts the orchestration core consumes. Every call is
// rate limited, retried on transient failures, and bounded by a timeout so
// no remote call can leave a turn pending.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/stationmind/stationmind/internal/conversation"
)

// ErrGeneration indicates the underlying model call failed after retries.
var ErrGeneration = errors.New("generation failed")

// Reply is the model's answer to one generation request: the final text
// plus any further tool calls the model requested.
type Reply struct {
	Text      string
	ToolCalls []conversation.ToolCall
}

// StreamFunc receives text increments in order of production. Returning an
// error aborts the stream and releases the upstream generation.
type StreamFunc func(ctx context.Context, delta string) error

// Generator is the generation collaborator contract: a finite, ordered
// sequence of text increments followed by the complete reply. The stream
// is not restartable mid-flight.
type Generator interface {
	Generate(ctx context.Context, msgs []conversation.Message, stream StreamFunc) (*Reply, error)
}

// Config holds Client construction parameters.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "ollama/qwen3" or "googleai/gemini-2.5-flash"
	Logger    *slog.Logger

	// Timeout bounds a single generation call, retries included.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// RateLimiter throttles model calls. Nil installs the default
	// (10 req/s sustained, burst 30).
	RateLimiter *rate.Limiter

	// Retry controls transient-failure retries. Zero-value uses defaults.
	Retry RetryConfig
}

// DefaultTimeout bounds one generation call end to end.
const DefaultTimeout = 120 * time.Second

// Client is the Genkit-backed Generator. Safe for concurrent use.
type Client struct {
	g         *genkit.Genkit
	modelName string
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     RetryConfig
	logger    *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	return &Client{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		timeout:   timeout,
		limiter:   limiter,
		retry:     retry,
		logger:    logger,
	}, nil
}

// Generate implements Generator. When stream is non-nil each model chunk is
// forwarded in production order before the final reply is returned.
func (c *Client) Generate(ctx context.Context, msgs []conversation.Message, stream StreamFunc) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithMessages(toAIMessages(msgs)...),
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.Text != "" {
					if err := stream(cbCtx, part.Text); err != nil {
						return err
					}
				}
			}
			return nil
		}))
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return &Reply{
		Text:      resp.Text(),
		ToolCalls: fromToolRequests(resp.ToolRequests()),
	}, nil
}

// generateStructured runs a non-streaming generation with a typed output
// schema and unmarshals the result into out.
func (c *Client) generateStructured(ctx context.Context, opts []ai.GenerateOption, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return err
	}
	if err := resp.Output(out); err != nil {
		return fmt.Errorf("decoding structured output: %w", err)
	}
	return nil
}
