package retry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jzx17/genproxy/pkg/types"
)

// Doer performs one HTTP call. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do implements Doer
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Executor issues an outbound request, retrying transient failures with
// exponential backoff. One Executor may serve many concurrent requests:
// each Execute call keeps its own loop state and only the statistics are shared.
type Executor struct {
	doer         Doer
	backoff      BackoffStrategy
	eventHandler EventHandler
	clock        types.Clock
	stats        RetryStats
}

// RetryStats contains retry statistics
type RetryStats struct {
	TotalAttempts   int64         // outbound calls issued
	TotalRetries    int64         // executions that needed more than one call
	TotalSuccesses  int64         // executions that returned a 2xx response
	TotalFailures   int64         // executions that ended in an error
	AverageAttempts float64       // calls per finished execution
	LastRetryTime   time.Time     // when the last backoff started
	TotalRetryDelay time.Duration // total backoff time scheduled
	mu              sync.RWMutex
}

// ExecutorOption is a configuration option for Executor
type ExecutorOption func(*Executor)

// WithBackoff sets the backoff strategy
func WithBackoff(b BackoffStrategy) ExecutorOption {
	return func(e *Executor) {
		e.backoff = b
	}
}

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) ExecutorOption {
	return func(e *Executor) {
		e.eventHandler = handler
	}
}

// WithClock sets the clock used for backoff waits
func WithClock(clock types.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

// NewExecutor creates an executor around doer. A nil doer means http.DefaultClient.
func NewExecutor(doer Doer, opts ...ExecutorOption) *Executor {
	if doer == nil {
		doer = http.DefaultClient
	}

	e := &Executor{
		doer:    doer,
		backoff: DefaultPolicy().Backoff(),
		clock:   types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute sends the request described by desc, making at most maxAttempts calls.
//
// It returns the first 2xx response; the caller must close its body.
// A non-retryable status fails immediately with *UpstreamStatusError.
// When every attempt is retryable the result is *RetriesExhaustedError.
// If ctx ends before or between attempts the result is *CanceledError.
func (e *Executor) Execute(ctx context.Context, desc RequestDescriptor, maxAttempts int) (*http.Response, error) {
	if maxAttempts < 1 {
		return nil, ErrInvalidMaxAttempts
	}

	start := e.clock.Now()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(ctx, attempt, &CanceledError{Attempts: attempt, Err: err})
		}

		e.updateStats(func(stats *RetryStats) {
			stats.TotalAttempts++
		})
		if e.eventHandler != nil {
			e.eventHandler.OnAttempt(ctx, attempt+1, desc)
		}

		outcome := e.attempt(ctx, desc)

		switch outcome.Kind {
		case OutcomeSuccess:
			e.succeed(ctx, attempt+1, e.clock.Since(start))
			return outcome.Response, nil

		case OutcomeTerminal:
			if outcome.Err != nil {
				return nil, e.fail(ctx, attempt+1, outcome.Err)
			}
			return nil, e.fail(ctx, attempt+1, &UpstreamStatusError{
				StatusCode: outcome.StatusCode,
				Body:       outcome.Body,
			})
		}

		// A transport failure caused by our own context is a cancellation, not a retry.
		if outcome.Transport() && ctx.Err() != nil {
			return nil, e.fail(ctx, attempt+1, &CanceledError{Attempts: attempt + 1, Err: ctx.Err()})
		}

		if attempt == maxAttempts-1 {
			err := &RetriesExhaustedError{
				Attempts:   maxAttempts,
				LastStatus: outcome.StatusCode,
				LastBody:   outcome.Body,
				Err:        outcome.Err,
			}
			e.finish(false, maxAttempts)
			if e.eventHandler != nil {
				e.eventHandler.OnMaxAttemptsReached(ctx, maxAttempts, err)
			}
			return nil, err
		}

		delay := e.backoff.NextDelay(attempt, outcome)
		if err := e.wait(ctx, attempt+1, delay, outcome); err != nil {
			return nil, e.fail(ctx, attempt+1, &CanceledError{Attempts: attempt + 1, Err: err})
		}
	}
}

// attempt performs and classifies a single call
func (e *Executor) attempt(ctx context.Context, desc RequestDescriptor) Outcome {
	req, err := desc.NewHTTPRequest(ctx)
	if err != nil {
		return Outcome{Kind: OutcomeTerminal, Err: err}
	}
	return Classify(e.doer.Do(req))
}

// wait suspends the current execution for delay, or until ctx is done
func (e *Executor) wait(ctx context.Context, attempt int, delay time.Duration, outcome Outcome) error {
	e.updateStats(func(stats *RetryStats) {
		stats.LastRetryTime = e.clock.Now()
		stats.TotalRetryDelay += delay
	})

	timer := e.clock.NewTimer(delay)
	defer timer.Stop()

	if e.eventHandler != nil {
		e.eventHandler.OnBackoff(ctx, attempt, delay, outcome)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

func (e *Executor) succeed(ctx context.Context, attempts int, duration time.Duration) {
	e.finish(true, attempts)
	if e.eventHandler != nil && attempts > 1 {
		e.eventHandler.OnRetrySuccess(ctx, attempts, duration)
	}
}

func (e *Executor) fail(ctx context.Context, attempts int, err error) error {
	e.finish(false, attempts)
	if e.eventHandler != nil {
		e.eventHandler.OnRetryFailure(ctx, attempts, err)
	}
	return err
}

func (e *Executor) finish(success bool, attempts int) {
	e.updateStats(func(stats *RetryStats) {
		if success {
			stats.TotalSuccesses++
		} else {
			stats.TotalFailures++
		}
		if attempts > 1 {
			stats.TotalRetries++
		}
		stats.updateAverageAttempts()
	})
}

// GetStats gets retry statistics
func (e *Executor) GetStats() RetryStats {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return RetryStats{
		TotalAttempts:   e.stats.TotalAttempts,
		TotalRetries:    e.stats.TotalRetries,
		TotalSuccesses:  e.stats.TotalSuccesses,
		TotalFailures:   e.stats.TotalFailures,
		AverageAttempts: e.stats.AverageAttempts,
		LastRetryTime:   e.stats.LastRetryTime,
		TotalRetryDelay: e.stats.TotalRetryDelay,
	}
}

// ResetStats resets statistics
func (e *Executor) ResetStats() {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()

	e.stats.TotalAttempts = 0
	e.stats.TotalRetries = 0
	e.stats.TotalSuccesses = 0
	e.stats.TotalFailures = 0
	e.stats.AverageAttempts = 0
	e.stats.LastRetryTime = time.Time{}
	e.stats.TotalRetryDelay = 0
}

// updateStats updates statistics (thread-safe)
func (e *Executor) updateStats(fn func(*RetryStats)) {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	fn(&e.stats)
}

func (s *RetryStats) updateAverageAttempts() {
	totalOperations := s.TotalSuccesses + s.TotalFailures
	if totalOperations > 0 {
		s.AverageAttempts = float64(s.TotalAttempts) / float64(totalOperations)
	}
}
