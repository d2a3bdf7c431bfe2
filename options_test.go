package comlink_test

import (
	"testing"
	"time"

	"github.com/slackmgr/comlink"
	"github.com/stretchr/testify/assert"
)

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []comlink.Option
		wantErr string
	}{
		{name: "defaults"},
		{
			name: "all valid",
			opts: []comlink.Option{
				comlink.WithBatchSize(10),
				comlink.WithVisibilityTimeout(43200),
				comlink.WithWaitTimeSeconds(0),
				comlink.WithReceiveErrorBackoff(0),
				comlink.WithRemoveTimeout(time.Second),
				comlink.WithWorkerPool(comlink.NewWorkerPool(2)),
				comlink.WithVisibilityHeartbeat(time.Hour),
			},
		},
		{name: "batch size zero", opts: []comlink.Option{comlink.WithBatchSize(0)}, wantErr: "batch size must be between 1 and 10"},
		{name: "batch size too large", opts: []comlink.Option{comlink.WithBatchSize(11)}, wantErr: "batch size must be between 1 and 10"},
		{name: "negative visibility", opts: []comlink.Option{comlink.WithVisibilityTimeout(-1)}, wantErr: "visibility timeout"},
		{name: "visibility too large", opts: []comlink.Option{comlink.WithVisibilityTimeout(43201)}, wantErr: "visibility timeout"},
		{name: "wait too long", opts: []comlink.Option{comlink.WithWaitTimeSeconds(21)}, wantErr: "wait time must be between 0 and 20 seconds"},
		{name: "negative backoff", opts: []comlink.Option{comlink.WithReceiveErrorBackoff(-time.Second)}, wantErr: "receive error backoff cannot be negative"},
		{name: "zero remove timeout", opts: []comlink.Option{comlink.WithRemoveTimeout(0)}, wantErr: "remove timeout must be greater than zero"},
		{name: "nil recorder", opts: []comlink.Option{comlink.WithRecorder(nil)}, wantErr: "recorder cannot be nil"},
		{name: "negative heartbeat", opts: []comlink.Option{comlink.WithVisibilityHeartbeat(-time.Second)}, wantErr: "cannot be negative"},
		{
			name:    "heartbeat with short visibility",
			opts:    []comlink.Option{comlink.WithVisibilityHeartbeat(time.Minute), comlink.WithVisibilityTimeout(1)},
			wantErr: "at least 2 seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := comlink.ExportValidate(tt.opts...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
