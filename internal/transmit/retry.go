package transmit

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy decides how often and how long to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	// Jitter is the relative spread applied around the computed delay.
	Jitter   float64
	MinDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Factor:      2,
		Jitter:      0.25,
		MinDelay:    100 * time.Millisecond,
	}
}

// Delay is the wait before the retry that follows failed attempt number
// attempt (1-based), before jitter. Rate limited sends start from twice the
// base delay.
func (p RetryPolicy) Delay(kind FailureKind, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseDelay)
	if kind == KindRateLimited {
		base *= 2
	}
	d := base * math.Pow(p.Factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// jitter spreads d by ±Jitter using r in [0,1).
func (p RetryPolicy) jitter(d time.Duration, r float64) time.Duration {
	spread := float64(d) * p.Jitter
	out := time.Duration(float64(d) - spread + 2*spread*r)
	if out < p.MinDelay {
		out = p.MinDelay
	}
	return out
}

// policyBackOff adapts RetryPolicy to backoff.BackOff. The operation stores
// the last failure so the next delay can depend on its kind.
type policyBackOff struct {
	policy   RetryPolicy
	random   func() float64
	attempts int
	last     *SendError
}

func newPolicyBackOff(p RetryPolicy, random func() float64) *policyBackOff {
	if random == nil {
		random = rand.Float64
	}
	return &policyBackOff{policy: p, random: random}
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempts++
	if b.last == nil || !b.last.Kind.Retryable() || b.attempts >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	return b.policy.jitter(b.policy.Delay(b.last.Kind, b.attempts), b.random())
}

func (b *policyBackOff) Reset() {
	b.attempts = 0
	b.last = nil
}
