package redis

import (
	"context"
	"log/slog"

	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
	backend "github.com/redis/go-redis/v9"
)

// DefaultTraceChannel is the pub/sub channel traces are mirrored to.
const DefaultTraceChannel = "fsmlink:trace"

// TraceMirror publishes engine traces, encoded as wire frames, on a Redis
// channel. Emit only queues; Run does the publishing.
type TraceMirror struct {
	client  *backend.Client
	channel string
	logger  *slog.Logger
	queue   chan protocol.Message
}

// MirrorOption configures a TraceMirror.
type MirrorOption func(*TraceMirror)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) MirrorOption {
	return func(m *TraceMirror) {
		m.channel = channel
	}
}

// WithMirrorLogger sets the mirror logger.
func WithMirrorLogger(logger *slog.Logger) MirrorOption {
	return func(m *TraceMirror) {
		m.logger = logger
	}
}

// NewTraceMirror creates a mirror publishing through client.
func NewTraceMirror(client *backend.Client, opts ...MirrorOption) *TraceMirror {
	m := &TraceMirror{
		client:  client,
		channel: DefaultTraceChannel,
		logger:  logging.NewNop(),
		queue:   make(chan protocol.Message, 256),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Emit queues the trace. When the queue is full the trace is dropped.
func (m *TraceMirror) Emit(t domain.Trace) {
	select {
	case m.queue <- protocol.FromTrace(t):
	default:
		m.logger.Warn("trace mirror queue full, trace dropped", "element", t.Name)
	}
}

// Run publishes queued traces until ctx is done.
func (m *TraceMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			b, err := protocol.Encode(msg)
			if err != nil {
				m.logger.Error("cannot encode trace", "error", err)
				continue
			}
			if err := m.client.Publish(ctx, m.channel, b).Err(); err != nil {
				m.logger.Warn("trace publish failed", "channel", m.channel, "error", err)
			}
		}
	}
}

// Subscribe streams decoded messages published on the mirror channel until
// ctx is done. The returned channel is closed when the subscription ends.
func Subscribe(ctx context.Context, client *backend.Client, channel string) (<-chan protocol.Message, error) {
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan protocol.Message)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- protocol.Decode([]byte(m.Payload)):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
