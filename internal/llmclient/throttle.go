package llmclient

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/coactdev/coact/api/schemas"
)

// Throttled wraps a client with a token-bucket limiter. Batch evaluations
// run many isolated RunStates concurrently but share one provider quota;
// this is the single point where that shared resource is respected.
type Throttled struct {
	inner   schemas.LLMClient
	limiter *rate.Limiter
}

// NewThrottled builds the wrapper. requestsPerMinute <= 0 returns the inner
// client unchanged.
func NewThrottled(inner schemas.LLMClient, requestsPerMinute float64, burst int) schemas.LLMClient {
	if requestsPerMinute <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burst),
	}
}

// Complete blocks until the limiter admits the call, then delegates.
func (t *Throttled) Complete(ctx context.Context, req schemas.CompletionRequest) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.inner.Complete(ctx, req)
}
