package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/fsmlink/internal/compiler"
	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/internal/runtime"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/ports"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/aretw0/fsmlink/pkg/transport"
)

// ReasonNotInitialized answers commands that need a loaded machine.
const ReasonNotInitialized = "FSM not initialized."

// Option configures the Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithEngineOptions are applied to every engine the controller builds.
func WithEngineOptions(opts ...runtime.Option) Option {
	return func(c *Controller) {
		c.engineOpts = append(c.engineOpts, opts...)
	}
}

// Controller turns decoded messages into engine operations. It owns at most
// one engine at a time.
type Controller struct {
	loader     ports.DefinitionLoader
	eval       ports.Evaluator
	sink       ports.TraceSink
	parser     *compiler.Parser
	logger     *slog.Logger
	engineOpts []runtime.Option

	mu     sync.Mutex
	engine *runtime.Engine
	source string
}

// New creates a controller. Traces of every engine it starts go to sink.
func New(loader ports.DefinitionLoader, eval ports.Evaluator, sink ports.TraceSink, opts ...Option) *Controller {
	c := &Controller{
		loader: loader,
		eval:   eval,
		sink:   sink,
		parser: compiler.NewParser(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle dispatches one message and returns the response to broadcast.
// Its signature matches transport.Handler.
func (c *Controller) Handle(ctx context.Context, id transport.ConnID, msg protocol.Message) protocol.Message {
	c.logger.Debug("handling message", "conn", id, "msg", msg.String())

	switch msg.Type {
	case protocol.TypeJSON:
		return c.load(ctx, msg.JSONName)

	case protocol.TypeInput:
		eng := c.Engine()
		if eng == nil {
			return protocol.NewReject(ReasonNotInitialized)
		}
		if err := eng.InjectInput(ctx, msg.InputName, msg.InputValue); err != nil {
			if errors.Is(err, domain.ErrNotRunning) {
				return protocol.NewReject("FSM not running.")
			}
			return protocol.NewReject(err.Error())
		}
		return protocol.Empty()

	case protocol.TypeStop:
		eng := c.Engine()
		if eng == nil {
			return protocol.NewReject(ReasonNotInitialized)
		}
		eng.Stop()
		return protocol.NewStop()

	case protocol.TypeRequest:
		eng := c.Engine()
		if eng == nil {
			return protocol.NewReject(ReasonNotInitialized)
		}
		return protocol.NewJSON(eng.Name())

	case protocol.TypeReject:
		if eng := c.Engine(); eng != nil {
			c.logger.Info("peer rejected, stopping machine", "conn", id, "reason", msg.OtherInfo)
			eng.Stop()
		}
		return protocol.Empty()

	default:
		return protocol.Empty()
	}
}

func (c *Controller) load(ctx context.Context, name string) protocol.Message {
	if name == "" {
		return protocol.NewReject("No machine definition named.")
	}

	data, err := c.loader.Load(ctx, name)
	if err != nil {
		c.logger.Warn("cannot load machine", "name", name, "error", err)
		return protocol.NewReject(fmt.Sprintf("Couldn't open the file for reading: %v", err))
	}
	def, err := c.parser.Parse(data)
	if err != nil {
		c.logger.Warn("cannot parse machine", "name", name, "error", err)
		return protocol.NewReject(fmt.Sprintf("JSON parse error: %v", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		c.engine.Stop()
		c.engine = nil
	}

	opts := append([]runtime.Option{
		runtime.WithLogger(c.logger),
		runtime.WithTraceSink(c.sink),
	}, c.engineOpts...)
	eng := runtime.NewEngine(def, c.eval, opts...)
	if err := eng.Start(ctx); err != nil {
		c.logger.Warn("cannot start machine", "name", name, "error", err)
		var defErr *domain.DefinitionError
		if errors.As(err, &defErr) {
			return protocol.NewReject("Failed to build FSM: " + defErr.Reason)
		}
		return protocol.NewReject("Failed to build FSM: " + err.Error())
	}

	c.engine = eng
	c.source = name
	c.logger.Info("machine loaded", "name", def.Name, "source", name)
	return protocol.NewAccept()
}

// Engine returns the current engine, or nil when none was loaded.
func (c *Controller) Engine() *runtime.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Source returns the definition name the current engine was loaded from.
func (c *Controller) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Close stops the current engine.
func (c *Controller) Close() {
	if eng := c.Engine(); eng != nil {
		eng.Stop()
	}
}
