package llm

import (
	"context"
	"fmt"

	"github.com/aretw0/tabloop/pkg/ports"
	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped model with a token bucket.
type RateLimited struct {
	next    ports.Model
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with the given burst.
// A non-positive perMinute disables limiting.
func NewRateLimited(next ports.Model, perMinute, burst int) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Call implements ports.Model. It blocks until a token is available or ctx
// is done.
func (r *RateLimited) Call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Call(ctx, prompt, maxTokens)
}
