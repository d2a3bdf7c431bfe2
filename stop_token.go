package comlink

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// StopToken is a cooperative, one-shot stop signal. It starts unset, and once
// set it stays set. The zero value is not usable; create tokens with
// [NewStopToken] or [NotifyStop].
//
// All methods are safe for concurrent use.
type StopToken struct {
	once sync.Once
	done chan struct{}
}

// NewStopToken returns an unset token.
func NewStopToken() *StopToken {
	return &StopToken{done: make(chan struct{})}
}

// Set signals the token. Calling Set more than once, or concurrently, is safe.
func (t *StopToken) Set() {
	t.once.Do(func() { close(t.done) })
}

// IsSet reports whether the token has been signalled.
func (t *StopToken) IsSet() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the token is set.
func (t *StopToken) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the token is set or ctx is done. It returns nil when the
// token was set and ctx.Err() otherwise.
func (t *StopToken) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyStop returns a token that is set when the process receives one of the
// given signals (SIGINT and SIGTERM when none are given). The returned
// function stops signal delivery; it does not set the token.
func NotifyStop(sigs ...os.Signal) (*StopToken, func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	token := NewStopToken()
	sigCh := make(chan os.Signal, 1)
	quit := make(chan struct{})

	signal.Notify(sigCh, sigs...)

	go func() {
		select {
		case <-sigCh:
			token.Set()
		case <-quit:
		}
	}()

	var once sync.Once

	release := func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(quit)
		})
	}

	return token, release
}
