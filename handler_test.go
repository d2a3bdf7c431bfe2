package comlink_test

import (
	"context"
	"testing"
	"time"

	"github.com/slackmgr/comlink"
	"github.com/stretchr/testify/assert"
)

func TestHandlerKind(t *testing.T) {
	t.Parallel()

	blocking := comlink.Blocking(func(string) error { return nil })
	nonBlocking := comlink.NonBlocking(func(context.Context, string) error { return nil })

	assert.Equal(t, comlink.KindBlocking, blocking.Kind())
	assert.Equal(t, comlink.KindNonBlocking, nonBlocking.Kind())
	assert.Equal(t, "blocking", comlink.KindBlocking.String())
	assert.Equal(t, "non_blocking", comlink.KindNonBlocking.String())
	assert.Equal(t, "HandlerKind(7)", comlink.HandlerKind(7).String())
}

func TestWorkerPool(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, comlink.NewWorkerPool(0).Size())
	assert.Equal(t, 1, comlink.NewWorkerPool(-3).Size())
	assert.Equal(t, 8, comlink.NewWorkerPool(8).Size())
}

func TestPanicError(t *testing.T) {
	t.Parallel()

	err := &comlink.PanicError{Value: "oops"}
	assert.Equal(t, "handler panicked: oops", err.Error())
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	tests := map[comlink.Outcome]string{
		comlink.OutcomeAcked:         "acked",
		comlink.OutcomeParseFailed:   "parse_failed",
		comlink.OutcomeHandlerFailed: "handler_failed",
		comlink.OutcomeRemoveFailed:  "remove_failed",
		comlink.Outcome(9):           "Outcome(9)",
	}

	for outcome, want := range tests {
		assert.Equal(t, want, outcome.String())
	}

	assert.True(t, comlink.Result{Outcome: comlink.OutcomeAcked, Duration: time.Millisecond}.Acked())
	assert.False(t, comlink.Result{Outcome: comlink.OutcomeRemoveFailed}.Acked())
}
