package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/internal/validator"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/ports"
)

// Engine executes one MachineDef.
//
// Every mutation of the active state, the bindings and the ready flags
// happens on a single loop goroutine that drains the event queue. Readers
// only see the snapshot the loop publishes after each processed event.
type Engine struct {
	def  *domain.MachineDef
	eval ports.Evaluator

	logger        *slog.Logger
	sink          ports.TraceSink
	hooks         domain.LifecycleHooks
	queueSize     int
	now           func() time.Time
	releaser      io.Closer
	maxEpsilon    int
	scriptTimeout time.Duration

	mu       sync.Mutex // guards status transitions, ctx and launched
	status   atomic.Value
	ctx      context.Context
	cancel   context.CancelFunc
	launched bool
	stopOnce sync.Once

	events   chan event
	done     chan struct{}
	snapshot atomic.Pointer[domain.Snapshot]

	timerMu  sync.Mutex
	timers   map[int]*pendingTimer
	timerSeq uint64

	// loop-owned
	bindings  domain.Bindings
	active    string
	enteredAt time.Time
	ready     map[int]bool
}

// NewEngine creates an engine for def. The definition is validated by Start.
func NewEngine(def *domain.MachineDef, eval ports.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		def:        def,
		eval:       eval,
		logger:     logging.NewNop(),
		queueSize:  DefaultQueueSize,
		now:        time.Now,
		maxEpsilon: DefaultMaxEpsilonChain,
		done:       make(chan struct{}),
		timers:     make(map[int]*pendingTimer),
		ready:      make(map[int]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.status.Store(domain.StatusNotStarted)
	e.events = make(chan event, e.queueSize)

	name := ""
	if def != nil {
		name = def.Name
	}
	e.snapshot.Store(&domain.Snapshot{Machine: name, Status: domain.StatusNotStarted})
	return e
}

// Start validates the definition, enters the initial state and launches the loop.
// The initial state's entry (and any input-less transitions it triggers) completes
// before Start returns. On a DefinitionError the engine stays NotStarted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.Status() != domain.StatusNotStarted {
		e.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	if err := validator.Validate(e.def); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.eval == nil {
		e.mu.Unlock()
		return errors.New("engine has no evaluator")
	}

	// The engine outlives the request that started it.
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.bindings = domain.NewBindings(e.def.Internals)
	e.status.Store(domain.StatusRunning)
	e.launched = true
	e.mu.Unlock()

	initial, _ := e.def.InitialState()
	e.logger.Info("engine started", "machine", e.def.Name, "initial", initial.Name)

	e.enter(initial)
	e.settle()
	e.publish()

	go e.loop()
	return nil
}

// InjectInput queues an input event. It returns once the event is queued.
func (e *Engine) InjectInput(ctx context.Context, name, value string) error {
	_, err := e.post(ctx, name, value, false)
	return err
}

// InjectInputSync queues an input event and waits until the loop processed it.
func (e *Engine) InjectInputSync(ctx context.Context, name, value string) error {
	processed, err := e.post(ctx, name, value, true)
	if err != nil {
		return err
	}
	select {
	case <-processed:
		return nil
	case <-e.done:
		// The event that stopped the engine still counts as processed.
		select {
		case <-processed:
			return nil
		default:
			return domain.ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) post(ctx context.Context, name, value string, wait bool) (chan struct{}, error) {
	if name == "" {
		return nil, errors.New("input name is required")
	}
	if e.Status() != domain.StatusRunning {
		return nil, domain.ErrNotRunning
	}
	ev := event{kind: eventInput, name: name, value: value}
	if wait {
		ev.processed = make(chan struct{})
	}
	select {
	case e.events <- ev:
		return ev.processed, nil
	case <-e.ctx.Done():
		return nil, domain.ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop cancels every pending timer, marks the engine Stopped and closes the
// releaser. It is safe to call from any state, any number of times, including
// from hooks running on the loop.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.status.Store(domain.StatusStopped)
		cancel, launched := e.cancel, e.launched
		e.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		e.cancelAllTimers()

		if e.releaser != nil {
			if err := e.releaser.Close(); err != nil {
				e.logger.Warn("failed to release connection", "error", err)
			}
		}
		if !launched {
			close(e.done)
		}

		snap := *e.snapshot.Load()
		snap.Status = domain.StatusStopped
		e.snapshot.Store(&snap)

		name := ""
		if e.def != nil {
			name = e.def.Name
		}
		e.logger.Info("engine stopped", "machine", name)
	})
}

// Done is closed once the engine loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Status returns the lifecycle status.
func (e *Engine) Status() domain.ExecutionStatus {
	return e.status.Load().(domain.ExecutionStatus)
}

// Name returns the machine name.
func (e *Engine) Name() string {
	return e.snapshot.Load().Machine
}

// Definition returns the machine the engine runs.
func (e *Engine) Definition() *domain.MachineDef {
	return e.def
}

// CurrentStateName returns the active state, or "" before Start.
func (e *Engine) CurrentStateName() string {
	return e.snapshot.Load().State
}

// Snapshot returns a copy of the last published configuration.
func (e *Engine) Snapshot() domain.Snapshot {
	snap := *e.snapshot.Load()
	snap.Status = e.Status()
	snap.Bindings = snap.Bindings.Clone()
	return snap
}

func (e *Engine) running() bool {
	return e.Status() == domain.StatusRunning
}

func (e *Engine) publish() {
	e.snapshot.Store(&domain.Snapshot{
		Machine:   e.def.Name,
		State:     e.active,
		Status:    e.Status(),
		EnteredAt: e.enteredAt,
		Bindings:  e.bindings.Clone(),
	})
}

func (e *Engine) emit(trace domain.Trace) {
	if e.sink == nil {
		return
	}
	trace.Timestamp = e.now()
	trace.Bindings = e.bindings.Clone()
	e.sink.Emit(trace)
}

// evaluate runs a script against a staged scope and commits the staged
// bindings only if the evaluation succeeded.
func (e *Engine) evaluate(kind domain.ScriptKind, element, script, value string) (any, error) {
	ctx := e.ctx
	if e.scriptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.scriptTimeout)
		defer cancel()
	}

	scope := domain.NewScope(e.bindings, value, e.enteredAt, e.now)
	res, err := e.eval.Evaluate(ctx, script, scope)
	if err != nil {
		serr := &domain.ScriptError{Kind: kind, Element: element, Err: err}
		e.logger.Warn("script failed", "machine", e.def.Name, "kind", kind, "element", element, "error", err)
		if e.hooks.OnScriptError != nil {
			e.hooks.OnScriptError(e.ctx, serr)
		}
		return nil, serr
	}
	e.bindings.Outputs = scope.Outputs
	e.bindings.Internals = scope.Internals
	return res, nil
}

// maxDelay is the longest delay a timer can be armed with.
const maxDelay = time.Duration(math.MaxInt64)

// delayOf converts a delay script result in milliseconds to a duration.
// NaN is an error, non-positive values become zero and values beyond
// maxDelay (including +Inf) are clamped to it.
func delayOf(v any) (time.Duration, error) {
	var ms float64
	switch n := v.(type) {
	case float64:
		ms = n
	case int:
		ms = float64(n)
	case int64:
		ms = float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("delay %q is not a number", n)
		}
		ms = f
	default:
		return 0, fmt.Errorf("delay of type %T is not a number", v)
	}
	switch ns := ms * float64(time.Millisecond); {
	case math.IsNaN(ns):
		return 0, fmt.Errorf("delay is not a number")
	case ns <= 0:
		return 0, nil
	case ns >= float64(maxDelay):
		return maxDelay, nil
	default:
		return time.Duration(ns), nil
	}
}
