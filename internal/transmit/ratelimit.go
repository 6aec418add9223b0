package transmit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimits configures the three request windows. A zero value disables
// that window.
type RateLimits struct {
	PerSecond int
	Burst     int
	PerMinute int
	PerHour   int
}

func DefaultRateLimits() RateLimits {
	return RateLimits{PerSecond: 10, Burst: 20, PerMinute: 300, PerHour: 5000}
}

type RateStats struct {
	Made    int64 `json:"made"`
	Waited  int64 `json:"waited"`
	Dropped int64 `json:"dropped"`
}

// RateLimiter hands out a token only when every window has one.
type RateLimiter struct {
	mu      sync.Mutex
	windows []*rate.Limiter
	maxWait time.Duration

	made    atomic.Int64
	waited  atomic.Int64
	dropped atomic.Int64
}

func NewRateLimiter(l RateLimits, maxWait time.Duration) *RateLimiter {
	r := &RateLimiter{maxWait: maxWait}
	if l.PerSecond > 0 {
		burst := l.Burst
		if burst <= 0 {
			burst = l.PerSecond
		}
		r.windows = append(r.windows, rate.NewLimiter(rate.Limit(l.PerSecond), burst))
	}
	if l.PerMinute > 0 {
		r.windows = append(r.windows, rate.NewLimiter(rate.Limit(float64(l.PerMinute)/60), l.PerMinute))
	}
	if l.PerHour > 0 {
		r.windows = append(r.windows, rate.NewLimiter(rate.Limit(float64(l.PerHour)/3600), l.PerHour))
	}
	return r
}

// AllowAt takes a token at now if all windows have one, without waiting.
func (r *RateLimiter) AllowAt(now time.Time) bool {
	res, delay, ok := r.reserve(now)
	if !ok || delay > 0 {
		cancelAll(res, now)
		r.dropped.Add(1)
		return false
	}
	r.made.Add(1)
	return true
}

// Wait blocks until a token is available in every window, the bounded wait
// would be exceeded, or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	now := time.Now()
	res, delay, ok := r.reserve(now)
	if !ok || delay > r.maxWait {
		cancelAll(res, now)
		r.dropped.Add(1)
		return ErrRateLimited
	}
	if delay == 0 {
		r.made.Add(1)
		return nil
	}

	r.waited.Add(1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		cancelAll(res, time.Now())
		r.dropped.Add(1)
		return ctx.Err()
	case <-timer.C:
		r.made.Add(1)
		return nil
	}
}

func (r *RateLimiter) Stats() RateStats {
	return RateStats{Made: r.made.Load(), Waited: r.waited.Load(), Dropped: r.dropped.Load()}
}

// reserve books one token in every window and reports the longest delay.
// ok is false if some window can never grant it.
func (r *RateLimiter) reserve(now time.Time) ([]*rate.Reservation, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*rate.Reservation, 0, len(r.windows))
	var delay time.Duration
	for _, w := range r.windows {
		rv := w.ReserveN(now, 1)
		if !rv.OK() {
			return res, 0, false
		}
		res = append(res, rv)
		if d := rv.DelayFrom(now); d > delay {
			delay = d
		}
	}
	return res, delay, true
}

func cancelAll(res []*rate.Reservation, now time.Time) {
	for _, rv := range res {
		rv.CancelAt(now)
	}
}
