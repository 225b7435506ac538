package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultOutboxSize is the capacity of the Publish queue.
	DefaultOutboxSize = 256
	// DefaultWriteTimeout bounds a single frame write to one peer.
	DefaultWriteTimeout = 5 * time.Second
)

// Handler processes one decoded frame from connection id. Its response is
// broadcast to every registered connection, the originator included.
type Handler func(ctx context.Context, id ConnID, msg protocol.Message) protocol.Message

// Metrics receives transport counters. The observability package implements it.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	FrameReceived(t protocol.Type)
	FrameSent(t protocol.Type, peers int)
	PeerPruned()
	OutboxDropped()
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()            {}
func (nopMetrics) ConnectionClosed()            {}
func (nopMetrics) FrameReceived(protocol.Type)  {}
func (nopMetrics) FrameSent(protocol.Type, int) {}
func (nopMetrics) PeerPruned()                  {}
func (nopMetrics) OutboxDropped()               {}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithOnDisconnect is called after a connection's worker exits.
func WithOnDisconnect(fn func(ConnID)) ListenerOption {
	return func(l *Listener) {
		l.onDisconnect = fn
	}
}

// WithLogger sets the listener logger.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithMetrics sets the transport counters.
func WithMetrics(m Metrics) ListenerOption {
	return func(l *Listener) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithOutboxSize sets the capacity of the Publish queue.
func WithOutboxSize(n int) ListenerOption {
	return func(l *Listener) {
		if n > 0 {
			l.outboxSize = n
		}
	}
}

// WithMaxConnections caps concurrent connections. Zero means unbounded.
func WithMaxConnections(n int) ListenerOption {
	return func(l *Listener) {
		l.maxConns = n
	}
}

// Listener accepts connections on one port, runs one worker per connection
// and broadcasts every outgoing frame to all of them.
type Listener struct {
	handler      Handler
	onDisconnect func(ConnID)
	logger       *slog.Logger
	metrics      Metrics
	outboxSize   int
	maxConns     int
	writeTimeout time.Duration

	registry *Registry
	outbox   chan protocol.Message
	quit     chan struct{}
	nextID   atomic.Uint64
	stopped  atomic.Bool
	stopOnce sync.Once

	mu        sync.Mutex
	ln        net.Listener
	serving   bool
	serveDone chan struct{}
}

// NewListener creates a listener dispatching frames to handler.
func NewListener(handler Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		handler:      handler,
		logger:       logging.NewNop(),
		metrics:      nopMetrics{},
		outboxSize:   DefaultOutboxSize,
		writeTimeout: DefaultWriteTimeout,
		registry:     NewRegistry(),
		quit:         make(chan struct{}),
		serveDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.outbox = make(chan protocol.Message, l.outboxSize)
	return l
}

// Listen binds addr ("host:port"; port 0 picks a free one).
func (l *Listener) Listen(addr string) error {
	if l.stopped.Load() {
		return ErrListenerStopped
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	l.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Registry exposes the live connections.
func (l *Listener) Registry() *Registry {
	return l.registry
}

// Serve runs the accept loop until Stop is called or ctx is cancelled, then
// waits for every connection worker to exit.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	if ln == nil {
		l.mu.Unlock()
		return errors.New("listener is not bound")
	}
	if l.serving || l.stopped.Load() {
		l.mu.Unlock()
		return ErrListenerStopped
	}
	l.serving = true
	l.mu.Unlock()
	defer close(l.serveDone)

	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.quit:
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		l.drain()
		return nil
	})

	for {
		conn, err := ln.Accept()
		if l.stopped.Load() {
			if conn != nil {
				_ = conn.Close()
			}
			break
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Warn("accept failed", "error", err)
			continue
		}
		if l.maxConns > 0 && l.registry.Len() >= l.maxConns {
			l.logger.Warn("connection refused, limit reached", "remote", conn.RemoteAddr().String(), "limit", l.maxConns)
			_ = conn.Close()
			continue
		}

		id := ConnID(l.nextID.Add(1))
		l.registry.Add(id, conn)
		if l.stopped.Load() {
			// Stop ran between Accept and Add; CloseAll may have missed conn.
			_ = conn.Close()
		}
		l.metrics.ConnectionOpened()
		l.logger.Info("connection accepted", "conn", id, "remote", conn.RemoteAddr().String())
		g.Go(func() error {
			l.work(ctx, id, conn)
			return nil
		})
	}

	return g.Wait()
}

func (l *Listener) work(ctx context.Context, id ConnID, conn net.Conn) {
	defer func() {
		l.registry.Remove(id)
		_ = conn.Close()
		l.metrics.ConnectionClosed()
		l.logger.Info("connection closed", "conn", id)
		if l.onDisconnect != nil {
			l.onDisconnect(id)
		}
	}()

	sc := NewFrameScanner(conn)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		msg, err := protocol.Parse(raw)
		if err != nil {
			l.logger.Debug("undecodable frame", "conn", id, "error", err)
		}
		l.metrics.FrameReceived(msg.Type)
		l.logger.Debug("frame received", "conn", id, "msg", msg.String())

		l.Broadcast(l.handler(ctx, id, msg))
	}
	if err := sc.Err(); err != nil && !l.stopped.Load() && !errors.Is(err, net.ErrClosed) {
		l.logger.Warn("connection read failed", "conn", id, "error", err)
	}
}

// Broadcast writes msg to every registered connection now. A connection that
// fails the write is closed and removed.
func (l *Listener) Broadcast(msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		l.logger.Error("cannot encode message", "type", msg.Type, "error", err)
		return
	}
	frame := AppendFrame(b)

	peers := l.registry.snapshot()
	sent := 0
	for _, p := range peers {
		if err := p.write(frame, l.writeTimeout); err != nil {
			l.registry.Remove(p.id)
			_ = p.conn.Close()
			l.metrics.PeerPruned()
			l.logger.Warn("send failed, connection pruned", "conn", p.id, "error", err)
			continue
		}
		sent++
	}
	l.metrics.FrameSent(msg.Type, sent)
}

// Publish queues msg for broadcast and returns immediately. Messages are
// sent in the order they were published; when the queue is full the message
// is dropped.
func (l *Listener) Publish(msg protocol.Message) {
	if l.stopped.Load() {
		return
	}
	select {
	case l.outbox <- msg:
	default:
		l.metrics.OutboxDropped()
		l.logger.Warn("outbox full, message dropped", "type", msg.Type)
	}
}

func (l *Listener) drain() {
	for {
		select {
		case msg := <-l.outbox:
			l.Broadcast(msg)
		case <-l.quit:
			return
		}
	}
}

// Stop closes the listener and every connection and waits for the workers.
// It is idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.stopped.Store(true)

		l.mu.Lock()
		ln, serving := l.ln, l.serving
		l.mu.Unlock()

		if ln != nil {
			// Wake an Accept parked in the kernel so the loop sees the flag.
			if c, err := net.DialTimeout("tcp", ln.Addr().String(), 500*time.Millisecond); err == nil {
				_ = c.Close()
			}
			_ = ln.Close()
		}
		close(l.quit)
		l.registry.CloseAll()

		if serving {
			<-l.serveDone
		}
		l.logger.Info("listener stopped")
	})
}
