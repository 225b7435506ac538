package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/fsmlink/internal/runtime"
	"github.com/aretw0/fsmlink/pkg/adapters/lua"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/observability"
	"github.com/aretw0/fsmlink/pkg/ports"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/aretw0/fsmlink/pkg/transport"
)

// RunOptions configures Run.
type RunOptions struct {
	Path    string
	Publish string // listener address to stream traces to; empty runs locally only
	In      io.Reader
	Out     io.Writer
	Raw     bool
	// Linger is how long to keep the machine alive once In is exhausted,
	// so pending delayed transitions can still fire.
	Linger        time.Duration
	ScriptTimeout time.Duration
	Logger        *slog.Logger
}

// Run executes a machine file locally. Each line of In is either
// "name=value", which injects an input, or "q" to quit. Traces are printed to
// Out and, with Publish set, streamed to a remote listener.
func Run(ctx context.Context, opts RunOptions) error {
	def, _, err := loadMachine(opts.Path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := senderLogger(opts.Logger)
	p := newPrinter(opts.Out, opts.Raw)

	// Every line goes through one writer so traces and notices never interleave.
	traces := make(chan string, 256)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range traces {
			fmt.Fprintln(opts.Out, line)
		}
	}()

	sinks := ports.MultiSink{ports.TraceSinkFunc(func(t domain.Trace) {
		select {
		case traces <- p.line(protocol.FromTrace(t)):
		default:
			logger.Warn("trace output lagging, trace dropped", "element", t.Name)
		}
	})}

	engineOpts := []runtime.Option{
		runtime.WithLogger(logger),
		runtime.WithScriptTimeout(opts.ScriptTimeout),
		runtime.WithLifecycleHooks(observability.LoggingHooks(logger)),
	}
	if opts.Publish != "" {
		sender := transport.NewSender(opts.Publish, transport.WithSenderLogger(logger))
		if err := sender.Connect(ctx); err != nil {
			return err
		}
		defer sender.Close()
		sinks = append(sinks, transport.TraceSink(sender))
		engineOpts = append(engineOpts, runtime.WithReleaser(sender))
	}
	engineOpts = append(engineOpts, runtime.WithTraceSink(sinks))

	eng := runtime.NewEngine(def, lua.New(), engineOpts...)
	if err := eng.Start(ctx); err != nil {
		close(traces)
		return err
	}
	defer func() {
		eng.Stop()
		<-eng.Done()
		close(traces)
		<-printed
	}()

	if !opts.Raw {
		traces <- fmt.Sprintf(">>> Machine '%s' running. Enter name=value, or q to quit.", def.Name)
	}

	lines := scanLines(ctx, opts.In)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-eng.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return linger(ctx, eng, opts.Linger)
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "q", "quit", "exit":
				return nil
			}
			name, value, found := strings.Cut(line, "=")
			name = strings.TrimSpace(name)
			if !found || name == "" {
				logger.Warn("expected name=value", "line", line)
				continue
			}
			if err := eng.InjectInputSync(ctx, name, strings.TrimSpace(value)); err != nil {
				if errors.Is(err, domain.ErrNotRunning) {
					return nil
				}
				return err
			}
		}
	}
}

func linger(ctx context.Context, eng *runtime.Engine, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-eng.Done():
	case <-t.C:
	}
	return nil
}

func scanLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
