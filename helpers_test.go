package comlink_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/slackmgr/comlink"
	"github.com/slackmgr/comlink/memory"
	"github.com/slackmgr/types"
)

// mockLogger is a no-op logger for testing.
type mockLogger struct{}

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithField(_ string, _ any) types.Logger { return m }

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithFields(_ map[string]any) types.Logger { return m }
func (m *mockLogger) Debug(_ string)                           {}
func (m *mockLogger) Debugf(_ string, _ ...any)                {}
func (m *mockLogger) Info(_ string)                            {}
func (m *mockLogger) Infof(_ string, _ ...any)                 {}
func (m *mockLogger) Warn(_ string)                            {}
func (m *mockLogger) Warnf(_ string, _ ...any)                 {}
func (m *mockLogger) Error(_ string)                           {}
func (m *mockLogger) Errorf(_ string, _ ...any)                {}
func (m *mockLogger) Fatal(_ string)                           {}
func (m *mockLogger) Fatalf(_ string, _ ...any)                {}

//nolint:ireturn // Returns interface for convenience in tests
func newMockLogger() types.Logger {
	return &mockLogger{}
}

// stubQueue wraps a memory queue and lets individual operations be replaced.
type stubQueue struct {
	*memory.Queue

	takeFunc             func(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error)
	removeFunc           func(ctx context.Context, receiptHandle string) error
	changeVisibilityFunc func(ctx context.Context, receiptHandle string, timeoutSeconds int32) error
}

func newStubQueue() *stubQueue {
	return &stubQueue{Queue: memory.New()}
}

func (s *stubQueue) Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error) {
	if s.takeFunc != nil {
		return s.takeFunc(ctx, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds)
	}

	return s.Queue.Take(ctx, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds)
}

func (s *stubQueue) Remove(ctx context.Context, receiptHandle string) error {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, receiptHandle)
	}

	return s.Queue.Remove(ctx, receiptHandle)
}

func (s *stubQueue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error {
	if s.changeVisibilityFunc != nil {
		return s.changeVisibilityFunc(ctx, receiptHandle, timeoutSeconds)
	}

	return s.Queue.ChangeVisibility(ctx, receiptHandle, timeoutSeconds)
}

// recordingRecorder captures everything reported by a consumer.
type recordingRecorder struct {
	mu       sync.Mutex
	receives []int
	errors   []error
	results  []comlink.Result
}

func (r *recordingRecorder) RecordReceive(_ context.Context, count int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.receives = append(r.receives, count)

	if err != nil {
		r.errors = append(r.errors, err)
	}
}

func (r *recordingRecorder) RecordResult(_ context.Context, result comlink.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, result)
}

func (r *recordingRecorder) Results() []comlink.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]comlink.Result(nil), r.results...)
}

func (r *recordingRecorder) ReceiveErrors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errors...)
}

// handled collects handler invocations and signals each one.
type handled struct {
	mu     sync.Mutex
	bodies []string
	ch     chan string
}

func newHandled() *handled {
	return &handled{ch: make(chan string, 100)}
}

func (h *handled) add(body string) {
	h.mu.Lock()
	h.bodies = append(h.bodies, body)
	h.mu.Unlock()

	h.ch <- body
}

func (h *handled) Bodies() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.bodies...)
}

// waitFor waits until n invocations have been observed.
func (h *handled) waitFor(t *testing.T, n int) {
	t.Helper()

	timeout := time.After(5 * time.Second)

	for range n {
		select {
		case <-h.ch:
		case <-timeout:
			t.Fatalf("timed out waiting for %d handler invocations, got %d", n, len(h.Bodies()))
		}
	}
}

// waitResult waits for the consumer started with Start to return.
func waitResult(t *testing.T, errCh <-chan error, within time.Duration) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(within):
		t.Fatalf("consumer did not stop within %s", within)
		return nil
	}
}
