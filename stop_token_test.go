package comlink_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/slackmgr/comlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopToken(t *testing.T) {
	t.Parallel()

	t.Run("starts unset", func(t *testing.T) {
		t.Parallel()

		token := comlink.NewStopToken()
		assert.False(t, token.IsSet())

		select {
		case <-token.Done():
			t.Fatal("done channel should not be closed")
		default:
		}
	})

	t.Run("set is idempotent and concurrent safe", func(t *testing.T) {
		t.Parallel()

		token := comlink.NewStopToken()

		var wg sync.WaitGroup

		for range 10 {
			wg.Go(token.Set)
		}

		wg.Wait()
		token.Set()

		assert.True(t, token.IsSet())
		<-token.Done()
	})

	t.Run("wait returns nil when set", func(t *testing.T) {
		t.Parallel()

		token := comlink.NewStopToken()

		go func() {
			time.Sleep(10 * time.Millisecond)
			token.Set()
		}()

		require.NoError(t, token.Wait(t.Context()))
	})

	t.Run("wait returns context error", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
		defer cancel()

		err := comlink.NewStopToken().Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
