package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy describes exponential backoff with multiplicative jitter.
type RetryPolicy struct {
	// MaxAttempts counts the first try, so 1 disables retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the fraction of each delay that is randomised, in [0, 1].
	Jitter float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Hour
	}
	p.Jitter = math.Min(math.Max(p.Jitter, 0), 1)
	return p
}

// Delay is the wait before retry number n (1-based) given a uniform sample r
// in [0, 1). The capped exponential delay is scaled into [d*(1-Jitter), d].
func (p RetryPolicy) Delay(n int, r float64) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	d = d * (1 - p.Jitter*(1-r))
	return time.Duration(d)
}

// Start begins a fresh sequence bound to ctx's deadline. random may be nil.
func (p RetryPolicy) Start(ctx context.Context, clock Clock, random func() float64) *Attempts {
	if clock == nil {
		clock = SystemClock()
	}
	if random == nil {
		random = rand.Float64
	}
	a := &Attempts{policy: p.normalized(), clock: clock, random: random}
	a.deadline, a.hasDeadline = ctx.Deadline()
	return a
}

// Attempts is the state of one retry sequence. It is not safe for concurrent use.
type Attempts struct {
	policy      RetryPolicy
	clock       Clock
	random      func() float64
	deadline    time.Time
	hasDeadline bool
	made        int
}

// Next records a failed attempt and returns how long to wait before the next
// one. ok is false when attempts are exhausted or the wait would reach the
// caller's deadline.
func (a *Attempts) Next() (delay time.Duration, ok bool) {
	a.made++
	if a.made >= a.policy.MaxAttempts {
		return 0, false
	}
	delay = a.policy.Delay(a.made, a.random())
	if a.hasDeadline && !a.clock.Now().Add(delay).Before(a.deadline) {
		return 0, false
	}
	return delay, true
}

// Made is the number of failed attempts recorded so far.
func (a *Attempts) Made() int { return a.made }
