package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/fsmlink/internal/runtime"
	"github.com/aretw0/fsmlink/pkg/adapters/lua"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/ports"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/aretw0/fsmlink/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	traces []domain.Trace
}

func (r *recorder) Emit(t domain.Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, t)
}

func (r *recorder) all() []domain.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Trace(nil), r.traces...)
}

// lines renders traces as "STATE IDLE", "TRANSITION in / value==1", "STOP end".
func (r *recorder) lines() []string {
	var out []string
	for _, t := range r.all() {
		if t.Kind == domain.TraceStop {
			out = append(out, "STOP "+t.Name)
			continue
		}
		out = append(out, string(t.Element)+" "+t.Name)
	}
	return out
}

func (r *recorder) count(kind domain.ElementKind) int {
	n := 0
	for _, t := range r.all() {
		if t.Kind == domain.TraceLog && t.Element == kind {
			n++
		}
	}
	return n
}

type closer struct{ calls atomic.Int32 }

func (c *closer) Close() error {
	c.calls.Add(1)
	return nil
}

// literal evaluates "true", "false", numbers, "fail", "set NAME VALUE"
// and "set NAME VALUE; fail". It counts every evaluation.
func literal(calls *atomic.Int32) ports.EvaluatorFunc {
	return func(ctx context.Context, script string, scope *domain.Scope) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		fail := false
		if rest, ok := strings.CutSuffix(script, "; fail"); ok {
			script, fail = rest, true
		}
		switch {
		case script == "true":
			return true, nil
		case script == "false":
			return false, nil
		case script == "fail":
			return nil, errors.New("script failed")
		case strings.HasPrefix(script, "set "):
			parts := strings.Fields(script)
			scope.Output(parts[1], parts[2])
			if fail {
				return nil, errors.New("script failed")
			}
			return nil, nil
		}
		if f, err := strconv.ParseFloat(script, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unknown script %q", script)
	}
}

func tof5s() *domain.MachineDef {
	return &domain.MachineDef{
		Name:      "TOF5s",
		Inputs:    []string{"in"},
		Outputs:   []string{"out"},
		Internals: []domain.InternalVarDef{{Name: "timeout", Type: "int", InitialValue: "5000"}},
		States: []domain.StateDef{
			{Name: "IDLE", Action: `output("out", 0)`, Initial: true},
			{Name: "ACTIVE", Action: `output("out", 1)`},
			{Name: "TIMING"},
		},
		Transitions: []domain.TransitionDef{
			{Source: "IDLE", Target: "ACTIVE", Input: "in", Guard: "value==1"},
			{Source: "ACTIVE", Target: "TIMING", Input: "in", Guard: "value==0"},
			{Source: "TIMING", Target: "ACTIVE", Input: "in", Guard: "value==1"},
			{Source: "TIMING", Target: "IDLE", Delay: "timeout"},
		},
	}
}

func start(t *testing.T, def *domain.MachineDef, eval ports.Evaluator, opts ...runtime.Option) (*runtime.Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := runtime.NewEngine(def, eval, append([]runtime.Option{runtime.WithTraceSink(rec)}, opts...)...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e, rec
}

func TestEngine_StartEntersInitialState(t *testing.T) {
	e, rec := start(t, tof5s(), lua.New())

	assert.Equal(t, domain.StatusRunning, e.Status())
	assert.Equal(t, "IDLE", e.CurrentStateName())
	assert.Equal(t, "TOF5s", e.Name())
	assert.Equal(t, []string{"STATE IDLE"}, rec.lines())

	snap := e.Snapshot()
	assert.Equal(t, "0", snap.Bindings.Outputs["out"])
	assert.Equal(t, "5000", snap.Bindings.Internals["timeout"])
	assert.False(t, snap.EnteredAt.IsZero())
}

func TestEngine_TOF5s(t *testing.T) {
	ctx := context.Background()
	e, rec := start(t, tof5s(), lua.New())

	require.NoError(t, e.InjectInputSync(ctx, "in", "1"))

	assert.Equal(t, "ACTIVE", e.CurrentStateName())
	assert.Equal(t, 1, rec.count(domain.ElementTransition))
	assert.Equal(t, []string{"STATE IDLE", "TRANSITION in / value==1", "STATE ACTIVE"}, rec.lines())

	traces := rec.all()
	assert.Equal(t, "1", traces[1].Bindings.Inputs["in"])
	assert.Equal(t, "1", traces[2].Bindings.Outputs["out"])

	require.NoError(t, e.InjectInputSync(ctx, "in", "0"))
	assert.Equal(t, "TIMING", e.CurrentStateName())
	assert.Equal(t, 1, e.PendingTimers())

	require.NoError(t, e.InjectInputSync(ctx, "in", "1"))
	assert.Equal(t, "ACTIVE", e.CurrentStateName())
	assert.Equal(t, 0, e.PendingTimers())
}

func TestEngine_UnmatchedInputKeepsState(t *testing.T) {
	e, rec := start(t, tof5s(), lua.New())

	require.NoError(t, e.InjectInputSync(context.Background(), "in", "0"))

	assert.Equal(t, "IDLE", e.CurrentStateName())
	assert.Equal(t, "0", e.Snapshot().Bindings.Inputs["in"])
	assert.Equal(t, 0, rec.count(domain.ElementTransition))
}

func TestEngine_Reproducible(t *testing.T) {
	run := func() []string {
		e, rec := start(t, tof5s(), lua.New())
		for _, v := range []string{"1", "0", "1", "0", "7"} {
			require.NoError(t, e.InjectInputSync(context.Background(), "in", v))
		}
		e.Stop()
		return rec.lines()
	}

	assert.Equal(t, run(), run())
}

func TestEngine_DelayNotBeforeDuration(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "delay",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Delay: "80"}},
	}

	var enteredB atomic.Int64
	hooks := domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, ev *domain.StateEvent) {
			if ev.State == "b" {
				enteredB.Store(time.Now().UnixNano())
			}
		},
	}
	began := time.Now()
	e, _ := start(t, def, literal(nil), runtime.WithLifecycleHooks(hooks))

	assert.Equal(t, "a", e.CurrentStateName())
	assert.Equal(t, 1, e.PendingTimers())

	require.Eventually(t, func() bool { return e.CurrentStateName() == "b" }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Duration(enteredB.Load()-began.UnixNano()), 80*time.Millisecond)
}

func TestEngine_ExitCancelsTimers(t *testing.T) {
	def := &domain.MachineDef{
		Name:   "race",
		States: []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}, {Name: "c"}},
		Transitions: []domain.TransitionDef{
			{Source: "a", Target: "c", Delay: "60"},
			{Source: "a", Target: "b", Input: "go"},
		},
	}
	e, rec := start(t, def, literal(nil))
	require.Equal(t, 1, e.PendingTimers())

	require.NoError(t, e.InjectInputSync(context.Background(), "go", ""))
	assert.Equal(t, "b", e.CurrentStateName())
	assert.Equal(t, 0, e.PendingTimers())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "b", e.CurrentStateName())
	assert.NotContains(t, rec.lines(), "STATE c")
}

func TestEngine_ReadyTransitionSkipsGuard(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "debounce",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Input: "in", Guard: "true", Delay: "30"}},
	}
	var calls atomic.Int32
	e, _ := start(t, def, literal(&calls))

	require.NoError(t, e.InjectInputSync(context.Background(), "in", "1"))
	assert.Equal(t, "a", e.CurrentStateName())
	assert.Equal(t, int32(2), calls.Load()) // guard + delay

	require.Eventually(t, func() bool { return e.CurrentStateName() == "b" }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEngine_NonPositiveDelayFiresNow(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "now",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}, {Name: "c"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Delay: "0"}, {Source: "b", Target: "c", Delay: "fail"}},
	}
	e, _ := start(t, def, literal(nil))

	assert.Equal(t, "c", e.CurrentStateName())
	assert.Equal(t, 0, e.PendingTimers())
}

func TestEngine_HugeDelayIsClamped(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "far",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Delay: "1e13"}},
	}
	e, _ := start(t, def, literal(nil))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "a", e.CurrentStateName())
	assert.Equal(t, 1, e.PendingTimers())
}

func TestEngine_InfiniteDelayNeverFires(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "never",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Delay: "+Inf"}},
	}
	e, _ := start(t, def, literal(nil))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "a", e.CurrentStateName())
	assert.Equal(t, 1, e.PendingTimers())
}

func TestEngine_NaNDelayIsIgnored(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "nan",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Delay: "NaN"}},
	}
	e, _ := start(t, def, literal(nil))

	assert.Equal(t, "b", e.CurrentStateName())
	assert.Equal(t, 0, e.PendingTimers())
}

func TestEngine_EpsilonChain(t *testing.T) {
	def := &domain.MachineDef{
		Name:   "chain",
		States: []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}, {Name: "c"}},
		Transitions: []domain.TransitionDef{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a", Guard: "false"},
			{Source: "b", Target: "c", Guard: "true"},
		},
	}
	e, rec := start(t, def, literal(nil))

	assert.Equal(t, "c", e.CurrentStateName())
	assert.Equal(t, []string{"STATE a", "TRANSITION a -> b", "STATE b", "TRANSITION  / true", "STATE c"}, rec.lines())
}

func TestEngine_EpsilonCycleIsBounded(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "spin",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
	}
	e, rec := start(t, def, literal(nil), runtime.WithMaxEpsilonChain(5))

	assert.Equal(t, domain.StatusRunning, e.Status())
	assert.Equal(t, 5, rec.count(domain.ElementTransition))
}

func TestEngine_FirstQualifyingTransitionWins(t *testing.T) {
	def := &domain.MachineDef{
		Name:   "order",
		States: []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}, {Name: "c"}, {Name: "d"}},
		Transitions: []domain.TransitionDef{
			{Source: "a", Target: "b", Input: "x", Guard: "false"},
			{Source: "a", Target: "c", Input: "x", Guard: "true"},
			{Source: "a", Target: "d", Input: "x"},
		},
	}
	e, _ := start(t, def, literal(nil))

	require.NoError(t, e.InjectInputSync(context.Background(), "x", "1"))
	assert.Equal(t, "c", e.CurrentStateName())
}

func TestEngine_GuardErrorCountsAsFailure(t *testing.T) {
	def := &domain.MachineDef{
		Name:   "guard",
		States: []domain.StateDef{{Name: "a", Initial: true}, {Name: "b"}, {Name: "c"}},
		Transitions: []domain.TransitionDef{
			{Source: "a", Target: "b", Input: "x", Guard: "fail"},
			{Source: "a", Target: "c", Input: "x", Guard: "true"},
		},
	}
	var scriptErrs []*domain.ScriptError
	hooks := domain.LifecycleHooks{
		OnScriptError: func(_ context.Context, err *domain.ScriptError) { scriptErrs = append(scriptErrs, err) },
	}
	e, _ := start(t, def, literal(nil), runtime.WithLifecycleHooks(hooks))

	require.NoError(t, e.InjectInputSync(context.Background(), "x", "1"))
	assert.Equal(t, "c", e.CurrentStateName())
	require.Len(t, scriptErrs, 1)
	assert.Equal(t, domain.ScriptGuard, scriptErrs[0].Kind)
}

func TestEngine_FailedActionDiscardsWrites(t *testing.T) {
	def := &domain.MachineDef{
		Name:    "action",
		Outputs: []string{"out", "ok"},
		States: []domain.StateDef{
			{Name: "a", Initial: true, Action: "set ok yes"},
			{Name: "b", Action: "set out 1; fail"},
		},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "b", Input: "x"}},
	}
	e, rec := start(t, def, literal(nil))

	require.NoError(t, e.InjectInputSync(context.Background(), "x", ""))

	snap := e.Snapshot()
	assert.Equal(t, "b", snap.State)
	assert.Equal(t, "yes", snap.Bindings.Outputs["ok"])
	assert.NotContains(t, snap.Bindings.Outputs, "out")
	assert.Contains(t, rec.lines(), "STATE b")
}

func TestEngine_FinalStateStops(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "finite",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "end", Final: true}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "end", Input: "x"}},
	}
	conn := &closer{}
	e, rec := start(t, def, literal(nil), runtime.WithReleaser(conn))

	require.NoError(t, e.InjectInputSync(context.Background(), "x", ""))

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine loop did not exit")
	}
	assert.Equal(t, domain.StatusStopped, e.Status())
	assert.Equal(t, []string{"STATE a", "TRANSITION x", "STATE end", "STOP end"}, rec.lines())
	assert.Equal(t, int32(1), conn.calls.Load())

	e.Stop()
	assert.Equal(t, int32(1), conn.calls.Load())
	assert.ErrorIs(t, e.InjectInput(context.Background(), "x", ""), domain.ErrNotRunning)
}

func TestEngine_FinalStateReachesRemotePeer(t *testing.T) {
	frames := make(chan protocol.Message, 16)
	l := transport.NewListener(func(_ context.Context, _ transport.ConnID, msg protocol.Message) protocol.Message {
		frames <- msg
		return protocol.Empty()
	})
	require.NoError(t, l.Listen("127.0.0.1:0"))
	go func() { _ = l.Serve(context.Background()) }()
	t.Cleanup(l.Stop)

	s := transport.NewSender(l.Addr().String())
	require.NoError(t, s.Connect(context.Background()))

	def := &domain.MachineDef{
		Name:        "finite",
		States:      []domain.StateDef{{Name: "a", Initial: true}, {Name: "end", Final: true}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "end", Input: "go"}},
	}
	e := runtime.NewEngine(def, literal(nil), runtime.WithTraceSink(transport.TraceSink(s)), runtime.WithReleaser(s))
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)

	require.NoError(t, e.InjectInputSync(context.Background(), "go", ""))
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine loop did not exit")
	}
	assert.False(t, s.Connected())

	var last protocol.Message
	for {
		select {
		case msg := <-frames:
			last = msg
			if msg.Type == protocol.TypeStop {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("STOP never reached the listener, last frame %+v", last)
		}
	}
}

func TestEngine_StopIsIdempotent(t *testing.T) {
	e, _ := start(t, tof5s(), lua.New())

	e.Stop()
	e.Stop()

	<-e.Done()
	assert.Equal(t, domain.StatusStopped, e.Status())
	assert.Equal(t, domain.StatusStopped, e.Snapshot().Status)
}

func TestEngine_StopBeforeStart(t *testing.T) {
	e := runtime.NewEngine(tof5s(), lua.New())
	e.Stop()

	<-e.Done()
	assert.Equal(t, domain.StatusStopped, e.Status())
	assert.ErrorIs(t, e.Start(context.Background()), domain.ErrAlreadyStarted)
}

func TestEngine_DefinitionError(t *testing.T) {
	def := &domain.MachineDef{
		Name:        "broken",
		States:      []domain.StateDef{{Name: "a", Initial: true}},
		Transitions: []domain.TransitionDef{{Source: "a", Target: "nowhere", Input: "x"}},
	}
	e := runtime.NewEngine(def, literal(nil))

	err := e.Start(context.Background())
	var defErr *domain.DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, defErr.Reason, "nowhere")
	assert.Equal(t, domain.StatusNotStarted, e.Status())
	assert.Equal(t, "", e.CurrentStateName())
	assert.ErrorIs(t, e.InjectInput(context.Background(), "x", ""), domain.ErrNotRunning)
}

func TestEngine_StartTwice(t *testing.T) {
	e, _ := start(t, tof5s(), lua.New())
	assert.ErrorIs(t, e.Start(context.Background()), domain.ErrAlreadyStarted)
}

func TestEngine_InjectRequiresName(t *testing.T) {
	e, _ := start(t, tof5s(), lua.New())
	assert.Error(t, e.InjectInput(context.Background(), "", "1"))
}

func TestEngine_Hooks(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	note := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	}
	hooks := domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, ev *domain.StateEvent) { note("enter " + ev.State) },
		OnStateExit:  func(_ context.Context, ev *domain.StateEvent) { note("exit " + ev.State) },
		OnTransition: func(_ context.Context, ev *domain.TransitionEvent) { note("transition " + strconv.Itoa(ev.Index)) },
	}
	e, _ := start(t, tof5s(), lua.New(), runtime.WithLifecycleHooks(hooks))

	require.NoError(t, e.InjectInputSync(context.Background(), "in", "1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"enter IDLE", "exit IDLE", "transition 0", "enter ACTIVE"}, seen)
}
