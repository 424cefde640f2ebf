package scheduler

import "time"

const (
	// DefaultEscalationThreshold is the consecutive failure count that triggers the cooldown.
	DefaultEscalationThreshold = 10
	// DefaultCooldown is the long sleep entered at the threshold.
	DefaultCooldown = 5 * time.Minute
	// DefaultMaxBackoff caps the exponential sleep below the threshold.
	DefaultMaxBackoff = 60 * time.Second
)

// Policy decides how long a loop sleeps after a failed iteration.
type Policy struct {
	Threshold  int
	Cooldown   time.Duration
	MaxBackoff time.Duration
}

// DefaultPolicy returns the stock escalation policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:  DefaultEscalationThreshold,
		Cooldown:   DefaultCooldown,
		MaxBackoff: DefaultMaxBackoff,
	}
}

// Next returns the sleep after the failures-th consecutive failure and whether
// it is the escalation cooldown.
func (p Policy) Next(failures int) (time.Duration, bool) {
	if failures >= p.Threshold {
		return p.Cooldown, true
	}
	return expBackoff(failures, p.MaxBackoff), false
}

// expBackoff is min(2^n seconds, limit).
func expBackoff(n int, limit time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	// 2^30s already exceeds any sane cap
	if n >= 30 {
		return limit
	}
	return min(time.Duration(1<<n)*time.Second, limit)
}
