package processor

import "time"

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = time.Minute
	DefaultMaxDelay    = 60 * time.Minute
)

// RetryPolicy decides when a failed event is attempted again.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries ten times, doubling from one minute up to an hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff returns min(MaxDelay, BaseDelay*2^(attempt-1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether attempt used up the retry budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.normalized().MaxAttempts
}

// NextRetryAt returns the retry time for a failed attempt, or nil once the
// budget is exhausted.
func (p RetryPolicy) NextRetryAt(now time.Time, attempt int) *time.Time {
	if p.Exhausted(attempt) {
		return nil
	}
	next := now.Add(p.Backoff(attempt))
	return &next
}
