package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// WithTimeout returns a HandlerMiddleware that applies a per-call timeout.
// A zero timeout disables it.
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

// WithRetry returns a HandlerMiddleware that retries failed calls with
// exponential backoff. It respects context cancellation between retries.
//
// Parameters:
//   - maxRetries: maximum number of retry attempts (0 = no retry)
//   - baseBackoff: initial wait between retries, doubled each attempt
//   - logger: used to log retry attempts (may be nil for silent retries)
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil {
					return nil, lastErr
				}

				if attempt < maxRetries {
					wait := baseBackoff * (1 << uint(attempt))
					if logger != nil {
						logger.WarnContext(ctx, "retrying call",
							"attempt", attempt+1,
							"max_retries", maxRetries,
							"backoff_ms", wait.Milliseconds(),
							"error", err)
					}
					select {
					case <-ctx.Done():
						return nil, lastErr
					case <-time.After(wait):
					}
				}
			}
			return nil, lastErr
		}
	}
}
