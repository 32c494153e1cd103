package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/genproxy/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:443: connect: connection refused")

func testDescriptor() RequestDescriptor {
	return NewRequestDescriptor("https://upstream.test/v1beta/models/m:generateContent?key=secret", []byte(`{"contents":[]}`))
}

// immediate never waits between attempts
func immediate() ExecutorOption {
	return WithBackoff(NewExponentialBackoff(0, 0))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestExecutor_Execute_Success(t *testing.T) {
	doer := testutils.NewScriptedDoer(testutils.Status(http.StatusOK, `{"ok":true}`))
	executor := NewExecutor(doer, immediate())

	resp, err := executor.Execute(context.Background(), testDescriptor(), 3)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, readBody(t, resp))
	assert.Equal(t, 1, doer.Calls())

	stats := executor.GetStats()
	assert.Equal(t, int64(1), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Equal(t, int64(0), stats.TotalRetries)
}

func TestExecutor_Execute_AlwaysUnavailable(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		doer := testutils.Always(testutils.Status(http.StatusServiceUnavailable, "overloaded"))
		executor := NewExecutor(doer, immediate())

		resp, err := executor.Execute(context.Background(), testDescriptor(), maxAttempts)
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.Equal(t, maxAttempts, doer.Calls(), "maxAttempts=%d", maxAttempts)

		var exhausted *RetriesExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, maxAttempts, exhausted.Attempts)
		assert.Equal(t, http.StatusServiceUnavailable, exhausted.LastStatus)
		assert.Equal(t, "overloaded", exhausted.LastBody)
		assert.Nil(t, exhausted.Unwrap())
		assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	}
}

func TestExecutor_Execute_RateLimitedThenOK(t *testing.T) {
	doer := testutils.NewScriptedDoer(
		testutils.Status(http.StatusTooManyRequests, "slow down"),
		testutils.Status(http.StatusOK, "second"),
	)
	executor := NewExecutor(doer, immediate())

	resp, err := executor.Execute(context.Background(), testDescriptor(), 3)
	require.NoError(t, err)
	assert.Equal(t, "second", readBody(t, resp))
	assert.Equal(t, 2, doer.Calls())
	assert.Equal(t, int64(1), executor.GetStats().TotalRetries)
}

func TestExecutor_Execute_NonRetryableStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"bad request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
		{"redirect", http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := testutils.Always(testutils.Status(tt.status, "nope"))
			executor := NewExecutor(doer, immediate())

			_, err := executor.Execute(context.Background(), testDescriptor(), 3)
			require.Error(t, err)
			assert.Equal(t, 1, doer.Calls())

			var statusErr *UpstreamStatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
		})
	}
}

func TestExecutor_Execute_TransportFailuresExhausted(t *testing.T) {
	doer := testutils.Always(testutils.Fail(errConnRefused))
	executor := NewExecutor(doer, immediate())

	_, err := executor.Execute(context.Background(), testDescriptor(), 3)
	require.Error(t, err)
	assert.Equal(t, 3, doer.Calls())
	assert.ErrorIs(t, err, errConnRefused)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 0, exhausted.LastStatus)
}

func TestExecutor_Execute_TransportFailureThenSuccess(t *testing.T) {
	doer := testutils.NewScriptedDoer(
		testutils.Fail(errConnRefused),
		testutils.Status(http.StatusServiceUnavailable, ""),
		testutils.Status(http.StatusOK, "done"),
	)
	executor := NewExecutor(doer, immediate())

	resp, err := executor.Execute(context.Background(), testDescriptor(), 3)
	require.NoError(t, err)
	assert.Equal(t, "done", readBody(t, resp))
	assert.Equal(t, 3, doer.Calls())
}

func TestExecutor_Execute_InvalidMaxAttempts(t *testing.T) {
	doer := testutils.Always(testutils.Status(http.StatusOK, ""))
	executor := NewExecutor(doer, immediate())

	_, err := executor.Execute(context.Background(), testDescriptor(), 0)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	assert.Equal(t, 0, doer.Calls())
}

func TestExecutor_Execute_ReplaysDescriptor(t *testing.T) {
	doer := testutils.NewScriptedDoer(
		testutils.Status(http.StatusBadGateway, ""),
		testutils.Status(http.StatusOK, ""),
	)
	executor := NewExecutor(doer, immediate())
	desc := testDescriptor()

	resp, err := executor.Execute(context.Background(), desc, 3)
	require.NoError(t, err)
	resp.Body.Close()

	bodies := doer.Bodies()
	require.Len(t, bodies, 2)
	assert.Equal(t, string(desc.Body()), bodies[0])
	assert.Equal(t, bodies[0], bodies[1])

	for _, req := range doer.Requests() {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, "secret", req.URL.Query().Get("key"))
	}
}

func TestExecutor_Execute_ContextAlreadyCanceled(t *testing.T) {
	doer := testutils.Always(testutils.Status(http.StatusOK, ""))
	executor := NewExecutor(doer, immediate())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, testDescriptor(), 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, doer.Calls())
}

func TestExecutor_Execute_CanceledDuringBackoff(t *testing.T) {
	mClock := testutils.NewMockClock(t)
	doer := testutils.Always(testutils.Status(http.StatusInternalServerError, ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &recordingHandler{onBackoff: func(time.Duration) { cancel() }}
	executor := NewExecutor(doer,
		WithClock(testutils.NewClockWrapper(mClock)),
		WithEventHandler(handler))

	_, err := executor.Execute(ctx, testDescriptor(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var canceled *CanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Equal(t, 1, canceled.Attempts)
	assert.Equal(t, 1, doer.Calls())
	assert.Contains(t, handler.events(), "retry_failure")
}

func TestExecutor_Backoff_TransportDelays(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := testutils.NewMockClock(t)
	delays := make(chan time.Duration, 4)
	handler := &recordingHandler{onBackoff: func(d time.Duration) { delays <- d }}

	doer := testutils.Always(testutils.Fail(errConnRefused))
	executor := NewExecutor(doer,
		WithBackoff(DefaultPolicy().Backoff()),
		WithClock(testutils.NewClockWrapper(mClock)),
		WithEventHandler(handler))

	errCh := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, testDescriptor(), 3)
		errCh <- err
	}()

	for i, want := range []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond} {
		select {
		case got := <-delays:
			assert.Equal(t, want, got, "delay after attempt %d", i)
			mClock.Advance(got).MustWait(ctx)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for backoff %d", i)
		}
	}

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errConnRefused)
	case <-ctx.Done():
		t.Fatal("timed out waiting for executor")
	}
	assert.Equal(t, 3, doer.Calls())
	assert.Equal(t, 3*time.Second, executor.GetStats().TotalRetryDelay)
}

func TestExecutor_Backoff_StatusDelays(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := testutils.NewMockClock(t)
	delays := make(chan time.Duration, 4)
	handler := &recordingHandler{onBackoff: func(d time.Duration) { delays <- d }}

	doer := testutils.NewScriptedDoer(
		testutils.Status(http.StatusTooManyRequests, ""),
		testutils.Status(http.StatusServiceUnavailable, ""),
		testutils.Status(http.StatusOK, "ok"),
	)
	executor := NewExecutor(doer,
		WithBackoff(DefaultPolicy().Backoff()),
		WithClock(testutils.NewClockWrapper(mClock)),
		WithEventHandler(handler))

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := executor.Execute(ctx, testDescriptor(), 3)
		assert.NoError(t, err)
		respCh <- resp
	}()

	for i := 0; i < 2; i++ {
		base := time.Duration(1<<i) * time.Second
		select {
		case got := <-delays:
			assert.GreaterOrEqual(t, got, base)
			assert.Less(t, got, base+500*time.Millisecond)
			mClock.Advance(got).MustWait(ctx)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for backoff %d", i)
		}
	}

	select {
	case resp := <-respCh:
		require.NotNil(t, resp)
		assert.Equal(t, "ok", readBody(t, resp))
	case <-ctx.Done():
		t.Fatal("timed out waiting for executor")
	}
}

func TestExecutor_WithEventHandler(t *testing.T) {
	handler := &recordingHandler{}
	doer := testutils.NewScriptedDoer(
		testutils.Status(http.StatusInternalServerError, ""),
		testutils.Status(http.StatusOK, ""),
	)
	executor := NewExecutor(doer, immediate(), WithEventHandler(handler))

	resp, err := executor.Execute(context.Background(), testDescriptor(), 3)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"attempt", "backoff", "attempt", "retry_success"}, handler.events())
}

func TestExecutor_MaxAttemptsEvent(t *testing.T) {
	handler := &recordingHandler{}
	doer := testutils.Always(testutils.Status(http.StatusBadGateway, ""))
	executor := NewExecutor(doer, immediate(), WithEventHandler(handler))

	_, err := executor.Execute(context.Background(), testDescriptor(), 2)
	require.Error(t, err)

	assert.Equal(t, []string{"attempt", "backoff", "attempt", "max_attempts_reached"}, handler.events())
}

func TestExecutor_GetStats(t *testing.T) {
	doer := testutils.NewScriptedDoer(
		testutils.Status(http.StatusServiceUnavailable, ""),
		testutils.Status(http.StatusOK, ""),
		testutils.Status(http.StatusServiceUnavailable, ""),
		testutils.Status(http.StatusServiceUnavailable, ""),
		testutils.Status(http.StatusServiceUnavailable, ""),
	)
	executor := NewExecutor(doer, immediate())

	resp, err := executor.Execute(context.Background(), testDescriptor(), 3)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = executor.Execute(context.Background(), testDescriptor(), 3)
	require.Error(t, err)

	stats := executor.GetStats()
	assert.Equal(t, int64(5), stats.TotalAttempts)
	assert.Equal(t, int64(1), stats.TotalSuccesses)
	assert.Equal(t, int64(1), stats.TotalFailures)
	assert.Equal(t, int64(2), stats.TotalRetries)
	assert.Equal(t, 2.5, stats.AverageAttempts)

	executor.ResetStats()
	assert.Equal(t, int64(0), executor.GetStats().TotalAttempts)
}

func TestExecutor_ConcurrentExecutions(t *testing.T) {
	doer := testutils.Always(testutils.Status(http.StatusOK, ""))
	executor := NewExecutor(doer, immediate())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := executor.Execute(context.Background(), testDescriptor(), 3)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, doer.Calls())
	assert.Equal(t, int64(20), executor.GetStats().TotalSuccesses)
}

func TestExecutor_WithHTTPServer(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	executor := NewExecutor(server.Client(), immediate())
	desc := NewRequestDescriptor(server.URL+"/generate?key=k", []byte(`{}`))

	resp, err := executor.Execute(context.Background(), desc, 3)
	require.NoError(t, err)
	assert.Equal(t, `{"candidates":[]}`, readBody(t, resp))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExecutor_Execute_TimedOutAttemptIsRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := server.Client()
	client.Timeout = 100 * time.Millisecond
	executor := NewExecutor(client, immediate())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := executor.Execute(ctx, NewRequestDescriptor(server.URL, []byte(`{}`)), 3)
	require.NoError(t, err)
	assert.Equal(t, `{"candidates":[]}`, readBody(t, resp))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestExecutor_Execute_NilResponse(t *testing.T) {
	var calls atomic.Int32
	doer := DoerFunc(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, nil
	})
	executor := NewExecutor(doer, immediate())

	resp, err := executor.Execute(context.Background(), testDescriptor(), 2)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrNoResponse)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

// Test helper types
type recordingHandler struct {
	mu        sync.Mutex
	log       []string
	onBackoff func(time.Duration)
}

func (h *recordingHandler) record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = append(h.log, event)
}

func (h *recordingHandler) events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.log...)
}

func (h *recordingHandler) OnAttempt(ctx context.Context, attempt int, desc RequestDescriptor) {
	h.record("attempt")
}

func (h *recordingHandler) OnBackoff(ctx context.Context, attempt int, delay time.Duration, outcome Outcome) {
	h.record("backoff")
	if h.onBackoff != nil {
		h.onBackoff(delay)
	}
}

func (h *recordingHandler) OnRetrySuccess(ctx context.Context, attempt int, duration time.Duration) {
	h.record("retry_success")
}

func (h *recordingHandler) OnRetryFailure(ctx context.Context, attempt int, err error) {
	h.record("retry_failure")
}

func (h *recordingHandler) OnMaxAttemptsReached(ctx context.Context, attempt int, err error) {
	h.record("max_attempts_reached")
}

// Benchmark tests
func BenchmarkExecutor_NoRetry(b *testing.B) {
	doer := testutils.Always(testutils.Status(http.StatusOK, ""))
	executor := NewExecutor(doer, immediate())
	desc := testDescriptor()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := executor.Execute(context.Background(), desc, 3)
		if err == nil {
			resp.Body.Close()
		}
	}
}
