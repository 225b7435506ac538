package http

import (
	"log/slog"
	"sync"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
)

// Event is one encoded trace frame.
type Event struct {
	Kind string // STATE, TRANSITION or STOP
	Data []byte
}

// StreamManager fans engine traces out to SSE subscribers. It implements
// ports.TraceSink; slow subscribers lose events instead of blocking the engine.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	bufSize     int
	logger      *slog.Logger
}

// NewStreamManager creates a StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[chan Event]struct{}),
		bufSize:     32,
		logger:      logger,
	}
}

// Subscribe registers a subscriber. The returned func unregisters it.
func (sm *StreamManager) Subscribe() (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, sm.bufSize)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Len returns the number of subscribers.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Emit encodes the trace as a protocol frame and broadcasts it.
func (sm *StreamManager) Emit(trace domain.Trace) {
	msg := protocol.FromTrace(trace)
	data, err := protocol.Encode(msg)
	if err != nil {
		sm.logger.Warn("SSE: cannot encode trace", "error", err)
		return
	}
	kind := string(msg.Type)
	if msg.Type == protocol.TypeLog {
		kind = string(msg.ElementType)
	}
	sm.broadcast(Event{Kind: kind, Data: data})
}

func (sm *StreamManager) broadcast(ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "kind", ev.Kind)
		}
	}
}
