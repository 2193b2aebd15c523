package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRetriesExhausted is returned when a rate-limited request failed more
// times than the configured retry budget allows.
var ErrRetriesExhausted = errors.New("maximum retry attempts reached")

// ClientConfig tunes throttling and retry behavior of a Client.
type ClientConfig struct {
	// MinInterval is the minimum wall-clock gap enforced between requests.
	MinInterval time.Duration
	// MaxRetries bounds how many times a rate-limited request is retried.
	MaxRetries int
	// BackoffBase is the unit of the exponential backoff wait. Retry n
	// sleeps BackoffBase << n. Defaults to one second.
	BackoffBase time.Duration
}

// Client wraps a Provider with process-wide request throttling and bounded
// exponential-backoff retry on rate-limit failures. All agents talking to
// the same backend must share one Client so the throttle holds globally.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	cfg      ClientConfig
	logger   *zap.Logger
}

// NewClient creates a throttled completion client around a Provider.
func NewClient(p Provider, cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Client{
		provider: p,
		limiter:  rate.NewLimiter(limit, 1),
		cfg:      cfg,
		logger:   logger,
	}
}

// Complete sends messages to the backend and returns the completion text.
//
// Every attempt, including rate-limited retries, consumes a limiter token,
// so back-to-back calls are always spaced by at least MinInterval. A 429
// reply is retried with exponentially growing waits up to MaxRetries;
// exceeding the budget returns ErrRetriesExhausted. Any other failure
// propagates immediately.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	req := &CompletionRequest{
		Messages:    messages,
		Temperature: temperature,
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.provider.Complete(ctx, req)
		if err == nil {
			return resp.Content, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.RateLimited() {
			return "", err
		}

		if attempt >= c.cfg.MaxRetries {
			return "", fmt.Errorf("%w (%d)", ErrRetriesExhausted, c.cfg.MaxRetries)
		}

		wait := c.cfg.BackoffBase << (attempt + 1)
		c.logger.Warn("rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.cfg.MaxRetries),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("backoff interrupted: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
}

// Provider returns the wrapped backend, mainly for identification in logs.
func (c *Client) Provider() Provider { return c.provider }
