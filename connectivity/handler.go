// Package connectivity wraps calls to remote APIs (search, LLM) in a
// composable middleware chain: timeout, retry with backoff, circuit
// breaking, client-side rate limiting and logging.
//
// A Handler takes a request payload and returns the response body:
//
//	h := connectivity.Chain(
//	    connectivity.Logging(logger),
//	    connectivity.WithRetry(3, connectivity.Linear(2*time.Second), logger),
//	    connectivity.WithBreaker(connectivity.NewBreaker("openrouter")),
//	)(connectivity.HTTPHandler(client, url, headers))
package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// Handler performs one remote call.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares; the first one is the outermost wrapper.
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call with its duration: failures at error level,
// successes at debug.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "call failed",
					"duration_ms", dur.Milliseconds(),
					"payload_bytes", len(payload),
					"error", err)
			} else {
				logger.DebugContext(ctx, "call ok",
					"duration_ms", dur.Milliseconds(),
					"response_bytes", len(resp))
			}
			return resp, err
		}
	}
}
