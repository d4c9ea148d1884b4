package notifications

import (
	"math"
	"time"

	"encodefleet/internal/config"
)

// Backoff computes the delay before the next delivery attempt.
type Backoff struct {
	Strategy string
	Base     time.Duration
	Max      time.Duration
}

// NewBackoff builds the policy configured under [notifications].
func NewBackoff(cfg config.Notifications) Backoff {
	return Backoff{
		Strategy: cfg.Backoff,
		Base:     time.Duration(cfg.BackoffBaseSeconds) * time.Second,
		Max:      time.Duration(cfg.BackoffMaxSeconds) * time.Second,
	}
}

// Delay returns the wait after tryCount failed attempts. It never decreases
// as tryCount grows and never exceeds Max when Max is set.
func (b Backoff) Delay(tryCount int) time.Duration {
	if tryCount < 1 {
		tryCount = 1
	}
	var d time.Duration
	switch b.Strategy {
	case config.BackoffFixed:
		d = b.Base
	case config.BackoffLinear:
		d = b.cap(float64(tryCount) * float64(b.Base))
	default:
		d = b.cap(math.Pow(2, float64(tryCount-1)) * float64(b.Base))
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// cap converts a float duration while clamping overflow for large try counts.
func (b Backoff) cap(v float64) time.Duration {
	if b.Max > 0 && v > float64(b.Max) {
		return b.Max
	}
	if v > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}
