// Package retry provides the bounded retry executor used for every outbound
// call to the generative-language API.
//
// An Executor takes an immutable RequestDescriptor and a maximum attempt count.
// Each attempt is classified into an Outcome:
//
//   - transport failure (connection, DNS, timeout): retryable
//   - HTTP 429 or 5xx: retryable
//   - any other non-2xx: terminal, returned at once as *UpstreamStatusError
//   - 2xx: success, the response is returned at once
//
// Between retryable attempts the executor waits BaseDelay * 2^attempt. After a
// retryable status a uniform jitter in [0, JitterBound) is added; after a
// transport failure it is not. When the last permitted attempt is still
// retryable the result is *RetriesExhaustedError, which carries either the
// last transport error (reachable through errors.Is / errors.As) or the last
// HTTP status and body.
//
// Waits honour context cancellation and return *CanceledError wrapping
// ctx.Err().
//
// Basic usage:
//
//	policy := retry.DefaultPolicy()
//	executor := retry.NewExecutor(http.DefaultClient,
//		retry.WithBackoff(policy.Backoff()),
//		retry.WithEventHandler(retry.NewLoggingEventHandler(logger)))
//
//	desc := retry.NewRequestDescriptor(endpoint, body)
//	resp, err := executor.Execute(ctx, desc, policy.MaxAttempts)
//	if err != nil {
//		return err
//	}
//	defer resp.Body.Close()
//
// The executor holds no per-request state, so a single instance can be
// shared by all handlers of a server.
package retry
