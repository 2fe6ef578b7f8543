package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
)

// RetryAdapter retries transient failures of the wrapped adapter with capped
// exponential backoff.
type RetryAdapter struct {
	inner Adapter
	cfg   config.RetryConfig
}

// WithRetry wraps an adapter with retry behavior.
func WithRetry(inner Adapter, cfg config.RetryConfig) *RetryAdapter {
	return &RetryAdapter{inner: inner, cfg: cfg}
}

// Name returns the wrapped adapter's identifier.
func (r *RetryAdapter) Name() string {
	return r.inner.Name()
}

// Models returns the wrapped adapter's models.
func (r *RetryAdapter) Models() []string {
	return r.inner.Models()
}

// Unwrap returns the wrapped adapter.
func (r *RetryAdapter) Unwrap() Adapter {
	return r.inner
}

// Complete calls the wrapped adapter, retrying errors IsTransient accepts.
func (r *RetryAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			resp.Retries = attempt
			return resp, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt == r.cfg.MaxRetries {
			break
		}

		backoff := computeBackoff(r.cfg.BaseBackoffMs, r.cfg.MaxBackoffMs, attempt)
		slog.Warn("transient model error, retrying",
			"adapter", r.inner.Name(), "model", req.Model,
			"attempt", attempt+1, "backoff", backoff, "error", err)
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	backoff := time.Duration(baseMs) * time.Millisecond
	limit := time.Duration(maxMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
