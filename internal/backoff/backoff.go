// Package backoff computes retry delays for failed status polls.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	PolicyFixed          = "fixed"
	PolicyLinear         = "linear"
	PolicyExponential    = "exponential"
	PolicyExpEqualJitter = "exp_equal_jitter"
	PolicyExpFullJitter  = "exp_full_jitter"
)

// Compute returns the delay before retry number attempts (0-based) under the
// named policy, never exceeding maxDelay. Unknown policies behave like
// exp_full_jitter.
func Compute(policy string, base time.Duration, maxDelay time.Duration, attempts int, rng *rand.Rand) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	switch policy {
	case PolicyFixed:
		return min(base, maxDelay)
	case PolicyLinear:
		return min(base*time.Duration(max(1, attempts)), maxDelay)
	case PolicyExponential:
		return exponential(base, maxDelay, attempts)
	case PolicyExpEqualJitter:
		d := exponential(base, maxDelay, attempts)
		half := d / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	default:
		d := exponential(base, maxDelay, attempts)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}

func exponential(base, maxDelay time.Duration, attempts int) time.Duration {
	f := float64(base) * math.Pow(2, float64(attempts))
	if f >= float64(maxDelay) || math.IsInf(f, 0) {
		return maxDelay
	}
	return time.Duration(f)
}

// Valid reports whether policy is a known policy name.
func Valid(policy string) bool {
	switch policy {
	case PolicyFixed, PolicyLinear, PolicyExponential, PolicyExpEqualJitter, PolicyExpFullJitter:
		return true
	}
	return false
}
