package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited is an Oracle that waits for a limiter token before each call.
type RateLimited struct {
	oracle  Oracle
	limiter *rate.Limiter
}

// NewRateLimited limits o to rps calls per second with the given burst.
// A non-positive rps returns o unchanged.
func NewRateLimited(o Oracle, rps float64, burst int) Oracle {
	if rps <= 0 {
		return o
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{oracle: o, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Complete(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.oracle.Complete(ctx, req)
}
