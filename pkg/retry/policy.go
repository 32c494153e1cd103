package retry

import (
	"fmt"
	"time"
)

// Default policy values
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultJitterBound = 500 * time.Millisecond
)

// Policy holds the retry parameters. It is configuration, not runtime state.
type Policy struct {
	// MaxAttempts is the total number of calls allowed, including the first
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the wait after the first failed attempt; it doubles each time
	BaseDelay time.Duration `yaml:"base_delay"`

	// JitterBound is the exclusive upper bound of the random delay added after
	// a retryable HTTP status
	JitterBound time.Duration `yaml:"jitter"`
}

// DefaultPolicy returns the policy the proxy ships with
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		JitterBound: DefaultJitterBound,
	}
}

// Validate checks the policy values
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if p.JitterBound < 0 {
		return fmt.Errorf("retry.jitter must not be negative")
	}
	return nil
}

// Backoff builds the backoff strategy described by the policy
func (p Policy) Backoff(opts ...BackoffOption) *ExponentialBackoff {
	return NewExponentialBackoff(p.BaseDelay, p.JitterBound, opts...)
}

// WorstCaseDelay bounds the total time spent waiting between attempts:
// the sum of BaseDelay*2^i for i in 0..MaxAttempts-2, plus jitter for each wait.
func (p Policy) WorstCaseDelay() time.Duration {
	b := p.Backoff()
	var total time.Duration
	for i := 0; i < p.MaxAttempts-1; i++ {
		total += b.Delay(i) + p.JitterBound
	}
	return total
}
