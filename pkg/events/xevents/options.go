package xevents

import (
	"context"
	"log/slog"

	"github.com/coordkit/coordkit/pkg/observability/xsampling"
)

type busOptions struct {
	schema    EventMapSchema
	onReject  UncaughtRejectionHandler
	logger    *slog.Logger
	keyPrefix string
}

func defaultBusOptions() busOptions {
	return busOptions{
		onReject:  defaultUncaughtRejectionHandler,
		logger:    slog.Default(),
		keyPrefix: "xevents:",
	}
}

func defaultUncaughtRejectionHandler(_ context.Context, event string, _ any, err error) {
	slog.Default().Warn("xevents: uncaught listener rejection", "event", event, "error", err)
}

// Option configures a Bus constructor (NewMemoryBus, NewRedisBus).
type Option func(*busOptions)

// WithSchema attaches an EventMapSchema, validated on dispatch and again on
// delivery to each listener.
func WithSchema(schema EventMapSchema) Option {
	return func(o *busOptions) { o.schema = schema }
}

// WithUncaughtRejectionHandler sets the sink for delivery-time validation
// failures and listener errors. Defaults to logging at Warn.
func WithUncaughtRejectionHandler(fn UncaughtRejectionHandler) Option {
	return func(o *busOptions) {
		if fn != nil {
			o.onReject = fn
		}
	}
}

// WithLogger sets the bus's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *busOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithKeyPrefix sets the Redis channel prefix used by NewRedisBus. Ignored
// by NewMemoryBus. Defaults to "xevents:".
func WithKeyPrefix(prefix string) Option {
	return func(o *busOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}
