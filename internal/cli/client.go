package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/internal/presentation/tui"
	"github.com/aretw0/fsmlink/pkg/adapters/redis"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/aretw0/fsmlink/pkg/transport"
	backend "github.com/redis/go-redis/v9"
)

// printer writes messages either as wire JSON or as formatted monitor lines.
type printer struct {
	out io.Writer
	raw bool
	f   *tui.Formatter
}

func newPrinter(out io.Writer, raw bool) *printer {
	return &printer{out: out, raw: raw, f: tui.NewFormatter(tui.IsTerminal(out))}
}

func (p *printer) print(msg protocol.Message) {
	fmt.Fprintln(p.out, p.line(msg))
}

func (p *printer) line(msg protocol.Message) string {
	if p.raw {
		b, err := protocol.Encode(msg)
		if err != nil {
			return `{"type":"EMPTY"}`
		}
		return string(b)
	}
	return p.f.Format(msg)
}

// receive streams frames from s until it is closed or ctx is done.
func receive(ctx context.Context, s *transport.Sender) <-chan protocol.Message {
	ch := make(chan protocol.Message)
	go func() {
		defer close(ch)
		for {
			msg, err := s.Receive()
			if err != nil {
				return
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func senderLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return logging.NewNop()
	}
	return l
}

// SendOptions configures Send.
type SendOptions struct {
	Addr    string
	Message protocol.Message
	Timeout time.Duration // how long to wait for the reply
	Linger  time.Duration // how long to keep printing traces after it
	Raw     bool
	Out     io.Writer
	Logger  *slog.Logger
}

// Send delivers one message to a listener and prints what is broadcast back
// until the reply arrives, plus Linger. A REJECT reply is returned as an error.
func Send(ctx context.Context, opts SendOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := transport.NewSender(opts.Addr, transport.WithSenderLogger(senderLogger(opts.Logger)))
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Close()

	frames := receive(ctx, s)
	if err := s.Send(opts.Message); err != nil {
		return err
	}

	p := newPrinter(opts.Out, opts.Raw)
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	var reply *protocol.Message
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if reply == nil {
				return fmt.Errorf("no reply from %s within %s", opts.Addr, opts.Timeout)
			}
			if reply.Type == protocol.TypeReject {
				return fmt.Errorf("rejected: %s", reply.OtherInfo)
			}
			return nil
		case msg, ok := <-frames:
			if !ok {
				if reply == nil {
					return fmt.Errorf("connection to %s closed before a reply", opts.Addr)
				}
				return nil
			}
			p.print(msg)
			if reply == nil && msg.Type != protocol.TypeLog {
				reply = &msg
				deadline.Reset(opts.Linger)
			}
		}
	}
}

// MonitorOptions configures Monitor.
type MonitorOptions struct {
	Addr    string
	Redis   *backend.Client // when set, follow the trace mirror instead of the listener
	Channel string
	Raw     bool
	Out     io.Writer
	Logger  *slog.Logger
}

// Monitor prints every broadcast frame until ctx is done or the peer goes away.
func Monitor(ctx context.Context, opts MonitorOptions) error {
	p := newPrinter(opts.Out, opts.Raw)

	var frames <-chan protocol.Message
	if opts.Redis != nil {
		ch, err := redis.Subscribe(ctx, opts.Redis, opts.Channel)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", opts.Channel, err)
		}
		frames = ch
		if !opts.Raw {
			printSystemMessage(opts.Out, "Following channel '%s'.", opts.Channel)
		}
	} else {
		s := transport.NewSender(opts.Addr, transport.WithSenderLogger(senderLogger(opts.Logger)))
		if err := s.Connect(ctx); err != nil {
			return err
		}
		defer s.Close()
		frames = receive(ctx, s)
		if !opts.Raw {
			printSystemMessage(opts.Out, "Monitoring %s.", opts.Addr)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-frames:
			if !ok {
				if !opts.Raw {
					printSystemMessage(opts.Out, "Connection closed.")
				}
				return nil
			}
			p.print(msg)
		}
	}
}
