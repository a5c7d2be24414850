package services

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out consecutive upstream requests.
// The first Wait returns immediately; later calls block until the interval has elapsed.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing one request per interval. A zero interval never waits.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may go out or ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
