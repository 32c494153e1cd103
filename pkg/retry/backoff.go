package retry

import (
	"math/rand/v2"
	"time"
)

// maxShift keeps base<<attempt from overflowing time.Duration
const maxShift = 30

// BackoffStrategy defines how long to wait before the attempt that follows
// a retryable outcome. attempt is zero-indexed: the wait after the first
// attempt is NextDelay(0, ...).
type BackoffStrategy interface {
	NextDelay(attempt int, outcome Outcome) time.Duration
}

// JitterFunc returns a random duration in [0, bound)
type JitterFunc func(bound time.Duration) time.Duration

// UniformJitter draws uniformly from [0, bound)
func UniformJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(bound)))
}

// ExponentialBackoff waits base * 2^attempt. Retryable HTTP statuses add
// jitter in [0, jitterBound); transport failures do not, unless
// WithTransportJitter is set.
type ExponentialBackoff struct {
	baseDelay       time.Duration
	jitterBound     time.Duration
	maxDelay        time.Duration
	jitter          JitterFunc
	transportJitter bool
}

// BackoffOption configures an ExponentialBackoff
type BackoffOption func(*ExponentialBackoff)

// WithJitterFunc replaces the random source, mainly for tests
func WithJitterFunc(fn JitterFunc) BackoffOption {
	return func(b *ExponentialBackoff) {
		if fn != nil {
			b.jitter = fn
		}
	}
}

// WithTransportJitter applies jitter after transport failures too
func WithTransportJitter(enabled bool) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.transportJitter = enabled
	}
}

// WithMaxDelay caps the exponential part of the delay. Zero means no cap.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.maxDelay = d
	}
}

// NewExponentialBackoff creates an exponential backoff strategy
func NewExponentialBackoff(baseDelay, jitterBound time.Duration, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		baseDelay:   baseDelay,
		jitterBound: jitterBound,
		jitter:      UniformJitter,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Delay returns the deterministic part of the wait after attempt
func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxShift {
		attempt = maxShift
	}

	delay := b.baseDelay << uint(attempt)
	if b.maxDelay > 0 && delay > b.maxDelay {
		delay = b.maxDelay
	}
	return delay
}

// NextDelay implements BackoffStrategy
func (b *ExponentialBackoff) NextDelay(attempt int, outcome Outcome) time.Duration {
	delay := b.Delay(attempt)
	if outcome.Transport() && !b.transportJitter {
		return delay
	}
	return delay + b.jitter(b.jitterBound)
}

// JitterBound returns the exclusive upper bound of the added jitter
func (b *ExponentialBackoff) JitterBound() time.Duration {
	return b.jitterBound
}
