package comlink

import "time"

// WithHeartbeatInterval overrides the heartbeat interval, which is otherwise
// half the visibility timeout. This file is only compiled during testing.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Options) {
		o.heartbeatInterval = d
	}
}

// ExportValidate applies opts to the default options and validates them.
func ExportValidate(opts ...Option) error {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return o.validate()
}
