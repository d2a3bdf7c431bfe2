package comlink

import (
	"context"
	"fmt"
	"time"
)

// Outcome classifies how the processing of a single message ended.
type Outcome int

const (
	// OutcomeAcked means the handler succeeded and the message was removed.
	OutcomeAcked Outcome = iota

	// OutcomeParseFailed means the parse function rejected the body. The
	// message was left on the queue.
	OutcomeParseFailed

	// OutcomeHandlerFailed means the handler returned an error or panicked.
	// The message was left on the queue.
	OutcomeHandlerFailed

	// OutcomeRemoveFailed means the handler succeeded but the message could
	// not be removed. The handler is not invoked again for this delivery.
	OutcomeRemoveFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcked:
		return "acked"
	case OutcomeParseFailed:
		return "parse_failed"
	case OutcomeHandlerFailed:
		return "handler_failed"
	case OutcomeRemoveFailed:
		return "remove_failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the explicit per-message result produced by the dispatch loop.
type Result struct {
	MessageID string
	Outcome   Outcome
	Err       error
	Duration  time.Duration
}

// Acked reports whether the message was removed from the queue.
func (r Result) Acked() bool {
	return r.Outcome == OutcomeAcked
}

// Recorder receives consumer events for metrics. Implementations must be safe
// for concurrent use when shared between consumers. See
// [github.com/slackmgr/comlink/telemetry] for an OpenTelemetry implementation.
type Recorder interface {
	// RecordReceive is called after every completed receive. err is non-nil
	// when the transport failed.
	RecordReceive(ctx context.Context, count int, err error)

	// RecordResult is called once per dispatched message.
	RecordResult(ctx context.Context, result Result)
}

type noopRecorder struct{}

func (noopRecorder) RecordReceive(context.Context, int, error) {}
func (noopRecorder) RecordResult(context.Context, Result)      {}
