package retry

import (
	"context"
	"log/slog"
	"time"
)

// EventHandler observes an execution. Attempt numbers are 1-based.
// Handlers are called synchronously from the executing goroutine.
type EventHandler interface {
	// OnAttempt is called before each outbound call
	OnAttempt(ctx context.Context, attempt int, desc RequestDescriptor)
	// OnBackoff is called once the wait after a retryable attempt has been scheduled
	OnBackoff(ctx context.Context, attempt int, delay time.Duration, outcome Outcome)
	// OnRetrySuccess is called when a call succeeds after at least one retry
	OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration)
	// OnRetryFailure is called when the execution ends early with an error
	OnRetryFailure(ctx context.Context, attempt int, err error)
	// OnMaxAttemptsReached is called when every permitted attempt was retryable
	OnMaxAttemptsReached(ctx context.Context, attempt int, err error)
}

// MultiEventHandler fans events out to several handlers in order
type MultiEventHandler []EventHandler

func (m MultiEventHandler) OnAttempt(ctx context.Context, attempt int, desc RequestDescriptor) {
	for _, h := range m {
		h.OnAttempt(ctx, attempt, desc)
	}
}

func (m MultiEventHandler) OnBackoff(ctx context.Context, attempt int, delay time.Duration, outcome Outcome) {
	for _, h := range m {
		h.OnBackoff(ctx, attempt, delay, outcome)
	}
}

func (m MultiEventHandler) OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration) {
	for _, h := range m {
		h.OnRetrySuccess(ctx, attempt, duration)
	}
}

func (m MultiEventHandler) OnRetryFailure(ctx context.Context, attempt int, err error) {
	for _, h := range m {
		h.OnRetryFailure(ctx, attempt, err)
	}
}

func (m MultiEventHandler) OnMaxAttemptsReached(ctx context.Context, attempt int, err error) {
	for _, h := range m {
		h.OnMaxAttemptsReached(ctx, attempt, err)
	}
}

// LoggingEventHandler writes retry events to a slog.Logger
type LoggingEventHandler struct {
	logger *slog.Logger
}

// NewLoggingEventHandler creates a logging event handler; nil means slog.Default()
func NewLoggingEventHandler(logger *slog.Logger) *LoggingEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventHandler{logger: logger}
}

func (h *LoggingEventHandler) OnAttempt(ctx context.Context, attempt int, desc RequestDescriptor) {
	h.logger.DebugContext(ctx, "Sending upstream request",
		"attempt", attempt,
		"method", desc.Method(),
		"url", desc.Redacted())
}

func (h *LoggingEventHandler) OnBackoff(ctx context.Context, attempt int, delay time.Duration, outcome Outcome) {
	attrs := []any{"attempt", attempt, "backoff", delay}
	if outcome.Transport() {
		attrs = append(attrs, "error", outcome.Err)
	} else {
		attrs = append(attrs, "status", outcome.StatusCode)
	}
	h.logger.DebugContext(ctx, "Upstream request failed, retrying", attrs...)
}

func (h *LoggingEventHandler) OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration) {
	h.logger.InfoContext(ctx, "Upstream request succeeded after retry",
		"attempt", attempt,
		"duration", duration)
}

func (h *LoggingEventHandler) OnRetryFailure(ctx context.Context, attempt int, err error) {
	h.logger.WarnContext(ctx, "Upstream request failed",
		"attempt", attempt,
		"error", err)
}

func (h *LoggingEventHandler) OnMaxAttemptsReached(ctx context.Context, attempt int, err error) {
	h.logger.ErrorContext(ctx, "Max retry attempts reached",
		"attempts", attempt,
		"error", err)
}
