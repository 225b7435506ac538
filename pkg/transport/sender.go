package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/pkg/protocol"
)

// DefaultDialTimeout bounds Sender.Connect.
const DefaultDialTimeout = 5 * time.Second

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithSenderLogger sets the sender logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithDialTimeout bounds Connect.
func WithDialTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		s.dialTimeout = d
	}
}

// WithSenderWriteTimeout bounds a single frame write. Zero disables the deadline.
func WithSenderWriteTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		s.writeTimeout = d
	}
}

// WithSenderOutboxSize sets the capacity of the Publish queue.
func WithSenderOutboxSize(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.outboxSize = n
		}
	}
}

// Sender owns a single outbound connection.
type Sender struct {
	addr         string
	logger       *slog.Logger
	dialTimeout  time.Duration
	writeTimeout time.Duration
	outboxSize   int

	mu       sync.Mutex // guards conn, quit, pumpDone and every write
	conn     net.Conn
	quit     chan struct{}
	pumpDone chan struct{}

	rmu sync.Mutex // guards buf
	buf []byte

	outbox chan protocol.Message
}

// NewSender creates a sender for addr. Nothing is dialed until Connect.
func NewSender(addr string, opts ...SenderOption) *Sender {
	s := &Sender{
		addr:         addr,
		logger:       logging.NewNop(),
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
		outboxSize:   DefaultOutboxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbox = make(chan protocol.Message, s.outboxSize)
	return s
}

// Connect dials the peer. It fails fast with ErrAlreadyConnected on a live connection.
func (s *Sender) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.logger.Warn("connect ignored, already connected", "addr", s.addr)
		return ErrAlreadyConnected
	}

	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.addr, err)
	}
	s.conn = conn
	s.quit = make(chan struct{})
	s.pumpDone = make(chan struct{})
	s.rmu.Lock()
	s.buf = nil
	s.rmu.Unlock()

	go s.pump(s.quit, s.pumpDone)
	s.logger.Info("connected", "addr", s.addr)
	return nil
}

// Connected reports whether a connection is open.
func (s *Sender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes msg followed by the terminator as one write.
func (s *Sender) Send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	frame := AppendFrame(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Publish queues msg for asynchronous sending and returns immediately.
// When the queue is full the message is dropped.
func (s *Sender) Publish(msg protocol.Message) {
	select {
	case s.outbox <- msg:
	default:
		s.logger.Warn("outbox full, message dropped", "type", msg.Type)
	}
}

// pump sends published messages until quit is closed, then flushes whatever
// is still queued.
func (s *Sender) pump(quit, done chan struct{}) {
	defer close(done)
	for {
		select {
		case msg := <-s.outbox:
			s.deliver(msg)
		case <-quit:
			for {
				select {
				case msg := <-s.outbox:
					if !s.deliver(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Sender) deliver(msg protocol.Message) bool {
	if err := s.Send(msg); err != nil {
		s.logger.Warn("publish failed", "type", msg.Type, "error", err)
		return false
	}
	return true
}

// ReceiveFrame blocks until a complete frame arrives and returns it without
// the terminator. Bytes that follow it are kept for the next call.
func (s *Sender) ReceiveFrame() ([]byte, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	chunk := make([]byte, 4096)
	for {
		if i := bytes.Index(s.buf, Terminator); i >= 0 {
			frame := append([]byte(nil), s.buf[:i]...)
			s.buf = append(s.buf[:0], s.buf[i+len(Terminator):]...)
			return frame, nil
		}
		if len(s.buf) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return nil, ErrNotConnected
		}

		n, err := conn.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil && n == 0 {
			return nil, err
		}
	}
}

// Receive is ReceiveFrame followed by protocol.Parse.
func (s *Sender) Receive() (protocol.Message, error) {
	frame, err := s.ReceiveFrame()
	if err != nil {
		return protocol.Empty(), err
	}
	return protocol.Parse(frame)
}

// Close sends the messages already published, then closes the connection.
// Each pending write is bounded by the write timeout and the flush ends at
// the first failed write. It is idempotent.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.conn == nil || s.quit == nil {
		s.mu.Unlock()
		return nil
	}
	quit, done := s.quit, s.pumpDone
	s.quit = nil
	s.mu.Unlock()

	close(quit)
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.conn.Close()
	s.conn = nil
	s.logger.Info("disconnected", "addr", s.addr)
	return err
}
