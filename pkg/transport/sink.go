package transport

import (
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/ports"
	"github.com/aretw0/fsmlink/pkg/protocol"
)

// Publisher queues messages without blocking. Listener and Sender implement it.
type Publisher interface {
	Publish(msg protocol.Message)
}

// TraceSink turns engine traces into wire messages queued on p.
func TraceSink(p Publisher) ports.TraceSink {
	return ports.TraceSinkFunc(func(t domain.Trace) {
		p.Publish(protocol.FromTrace(t))
	})
}
