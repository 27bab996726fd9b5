package connectivity

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Backoff returns the wait before retry number attempt (0-based).
type Backoff func(attempt int) time.Duration

// Exponential doubles base on every attempt.
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration { return base * (1 << uint(attempt)) }
}

// Linear waits step, 2*step, 3*step, ...
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration { return step * time.Duration(attempt+1) }
}

// WithTimeout bounds every call. A zero timeout disables it.
func WithTimeout(timeout time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return next(ctx, payload)
		}
	}
}

// WithRetry retries failed calls up to maxRetries times, waiting backoff
// between attempts. Non-retryable errors (see IsRetryable) and context
// cancellation end the loop early. logger may be nil.
func WithRetry(maxRetries int, backoff Backoff, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if ctx.Err() != nil || !IsRetryable(err) {
					return nil, lastErr
				}
				if attempt == maxRetries {
					break
				}
				wait := backoff(attempt)
				if logger != nil {
					logger.WarnContext(ctx, "retrying call",
						"attempt", attempt+1,
						"max_retries", maxRetries,
						"backoff_ms", wait.Milliseconds(),
						"error", err)
				}
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil, lastErr
				case <-t.C:
				}
			}
			return nil, lastErr
		}
	}
}

// WithRateLimit waits for a token from lim before every attempt.
func WithRateLimit(lim *rate.Limiter) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			if err := lim.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, payload)
		}
	}
}
