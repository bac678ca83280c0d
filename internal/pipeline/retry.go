package pipeline

import (
	"context"
	"time"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/provider"
)

// generateWithRetry calls p.Generate, retrying on retryable errors with
// exponential backoff up to maxRetries additional attempts (spec §4.8 step
// 6: "bounded max_retries and backoff on transient errors"). It returns the
// number of attempts made alongside the result for audit/testing.
func generateWithRetry(ctx context.Context, p provider.Provider, req provider.Request, maxRetries int, sleep func(time.Duration)) (*provider.Response, int, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, provider.NewError(provider.KindCancelled, p.Name(), "context cancelled before attempt", err)
		}

		resp, err := p.Generate(ctx, req)
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err

		pErr, ok := err.(*provider.Error)
		if !ok || !pErr.Retryable() || attempt == maxRetries {
			return nil, attempt + 1, err
		}

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		if sleep != nil {
			sleep(backoff)
		} else {
			select {
			case <-ctx.Done():
				return nil, attempt + 1, provider.NewError(provider.KindCancelled, p.Name(), "context cancelled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return nil, maxRetries + 1, lastErr
}
