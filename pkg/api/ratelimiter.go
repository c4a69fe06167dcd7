package api

import (
	"context"
	"errors"
	"time"
)

var errLimiterStopped = errors.New("rate limiter stopped")

// RateLimiter spaces out expensive requests per client: after one is served
// the same client waits cooldown before the next. One goroutine owns the
// per-client timestamps.
//
// A nil *RateLimiter allows everything.
type RateLimiter struct {
	cooldown time.Duration
	requests chan limitRequest
	quit     chan struct{}
	now      func() time.Time
}

type limitRequest struct {
	client string
	reply  chan time.Duration
}

// NewRateLimiter returns nil when cooldown is not positive.
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	return newRateLimiter(cooldown, time.Now)
}

func newRateLimiter(cooldown time.Duration, now func() time.Time) *RateLimiter {
	if cooldown <= 0 {
		return nil
	}
	l := &RateLimiter{
		cooldown: cooldown,
		requests: make(chan limitRequest),
		quit:     make(chan struct{}),
		now:      now,
	}
	go l.loop()
	return l
}

// Close stops the limiter goroutine. Calling it twice is harmless.
func (l *RateLimiter) Close() {
	if l == nil {
		return
	}
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
}

// Allow reports how long client still has to wait. Zero means the request may
// proceed and starts a new cooldown.
func (l *RateLimiter) Allow(ctx context.Context, client string) (time.Duration, error) {
	if l == nil {
		return 0, nil
	}
	req := limitRequest{client: client, reply: make(chan time.Duration, 1)}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-l.quit:
		return 0, errLimiterStopped
	case l.requests <- req:
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case wait := <-req.reply:
		return wait, nil
	}
}

func (l *RateLimiter) loop() {
	next := make(map[string]time.Time)
	for {
		select {
		case <-l.quit:
			return
		case req := <-l.requests:
			now := l.now()
			if at, ok := next[req.client]; ok && now.Before(at) {
				req.reply <- at.Sub(now)
				continue
			}
			next[req.client] = now.Add(l.cooldown)
			// Forget clients whose cooldown ended so the map stays small.
			if len(next) > 1024 {
				for k, at := range next {
					if !now.Before(at) {
						delete(next, k)
					}
				}
			}
			req.reply <- 0
		}
	}
}
