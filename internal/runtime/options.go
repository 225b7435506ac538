package runtime

import (
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/ports"
)

const (
	// DefaultQueueSize is the capacity of the engine's event queue.
	DefaultQueueSize = 64
	// DefaultMaxEpsilonChain bounds how many input-less transitions may fire in a row.
	DefaultMaxEpsilonChain = 64
)

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTraceSink sets where LOG and STOP traces go.
func WithTraceSink(sink ports.TraceSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithQueueSize sets the capacity of the event queue.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithClock overrides the time source used for timestamps and elapsed().
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithReleaser hands the engine a resource to close when it stops,
// typically the outbound connection streaming its trace.
func WithReleaser(c io.Closer) Option {
	return func(e *Engine) {
		e.releaser = c
	}
}

// WithMaxEpsilonChain bounds consecutive input-less transitions.
// Machines with unconditional cycles otherwise never settle.
func WithMaxEpsilonChain(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxEpsilon = n
		}
	}
}

// WithScriptTimeout bounds each guard, delay and action evaluation.
func WithScriptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.scriptTimeout = d
	}
}
