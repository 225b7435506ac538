package ports

import "github.com/aretw0/fsmlink/pkg/domain"

// TraceSink receives engine traces.
// Emit is called from the engine loop and must hand the trace off without blocking on I/O.
type TraceSink interface {
	Emit(trace domain.Trace)
}

// TraceSinkFunc adapts a function to the TraceSink interface.
type TraceSinkFunc func(trace domain.Trace)

// Emit calls f.
func (f TraceSinkFunc) Emit(trace domain.Trace) {
	f(trace)
}

// MultiSink fans a trace out to several sinks in order.
type MultiSink []TraceSink

// Emit forwards the trace to every sink.
func (m MultiSink) Emit(trace domain.Trace) {
	for _, s := range m {
		if s != nil {
			s.Emit(trace)
		}
	}
}
