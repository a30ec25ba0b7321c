// Package ratelimit implements the global/per-channel token-bucket budget
// and the retry queue described in spec §4.7.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	globalRate       = 50 // requests per second, global
	globalBurst      = 50
	perChannelRate   = 5 // requests per 60s, per source channel
	perChannelWindow = 60 * time.Second
	housekeepingTick = 60 * time.Second
	bucketIdleAfter  = 2 * time.Minute
)

// Limiter bounds outbound request volume with a pair of token buckets
// (golang.org/x/time/rate): a global budget and a per-source-channel budget
// (spec §4.7).
type Limiter struct {
	global *rate.Limiter

	mu      sync.Mutex
	buckets map[string]*channelBucket

	cancel context.CancelFunc
}

type channelBucket struct {
	limiter    *rate.Limiter
	lastUsed   time.Time
}

// New creates a Limiter and starts its housekeeping sweep.
func New() *Limiter {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Limiter{
		global:  rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		buckets: make(map[string]*channelBucket),
		cancel:  cancel,
	}
	go l.housekeep(ctx)
	return l
}

// Stop ends the housekeeping sweep.
func (l *Limiter) Stop() {
	l.cancel()
}

// WaitForRequest suspends until both the global and per-channel budgets have
// room for one request, then reserves it. Equivalent to spec's
// waitForRequest followed by recordRequest: the reservation IS the record.
func (l *Limiter) WaitForRequest(ctx context.Context, channelID string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	bucket := l.bucketFor(channelID)
	return bucket.limiter.Wait(ctx)
}

func (l *Limiter) bucketFor(channelID string) *channelBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[channelID]
	if !ok {
		// perChannelRate per perChannelWindow, expressed as a rate.Limit.
		perSecond := rate.Limit(float64(perChannelRate) / perChannelWindow.Seconds())
		b = &channelBucket{limiter: rate.NewLimiter(perSecond, perChannelRate)}
		l.buckets[channelID] = b
	}
	b.lastUsed = time.Now()
	return b
}

// housekeep drops empty window buckets every 60s (spec §4.7).
func (l *Limiter) housekeep(ctx context.Context) {
	ticker := time.NewTicker(housekeepingTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for id, b := range l.buckets {
		if now.Sub(b.lastUsed) > bucketIdleAfter {
			delete(l.buckets, id)
		}
	}
}
