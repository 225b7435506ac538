package controller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/fsmlink/internal/controller"
	"github.com/aretw0/fsmlink/pkg/adapters/lua"
	"github.com/aretw0/fsmlink/pkg/adapters/memory"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu     sync.Mutex
	traces []domain.Trace
}

func (s *sink) Emit(t domain.Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = append(s.traces, t)
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.traces)
}

func tof5s() *domain.MachineDef {
	return &domain.MachineDef{
		Name:   "TOF5s",
		Inputs: []string{"in"},
		States: []domain.StateDef{{Name: "IDLE", Initial: true}, {Name: "ACTIVE"}, {Name: "TIMING"}},
		Transitions: []domain.TransitionDef{
			{Source: "IDLE", Target: "ACTIVE", Input: "in", Guard: "value==1"},
			{Source: "ACTIVE", Target: "TIMING", Input: "in", Guard: "value==0"},
			{Source: "TIMING", Target: "ACTIVE", Input: "in", Guard: "value==1"},
		},
	}
}

func newController(t *testing.T) (*controller.Controller, *sink) {
	t.Helper()
	loader, err := memory.NewFromMachines(tof5s())
	require.NoError(t, err)
	require.NoError(t, loader.Save(context.Background(), "garbage.json", []byte(`{"name": `)))
	require.NoError(t, loader.Save(context.Background(), "noinit.json", []byte(`{"name":"x","states":[{"name":"a"}]}`)))

	s := &sink{}
	c := controller.New(loader, lua.New(), s)
	t.Cleanup(c.Close)
	return c, s
}

func TestController_RequiresMachine(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	for _, msg := range []protocol.Message{protocol.NewInput("in", "1"), protocol.NewStop(), protocol.NewRequest()} {
		assert.Equal(t, protocol.NewReject(controller.ReasonNotInitialized), c.Handle(ctx, 1, msg), msg.String())
	}
	assert.Equal(t, protocol.Empty(), c.Handle(ctx, 1, protocol.NewReject("nope")))
	assert.Equal(t, protocol.Empty(), c.Handle(ctx, 1, protocol.Empty()))
	assert.Nil(t, c.Engine())
}

func TestController_LoadFailures(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	cases := map[string]string{
		"missing.json": "Couldn't open the file for reading",
		"garbage.json": "JSON parse error",
		"noinit.json":  "Failed to build FSM: no initial state",
		"":             "No machine definition named.",
	}
	for name, reason := range cases {
		resp := c.Handle(ctx, 1, protocol.NewJSON(name))
		assert.Equal(t, protocol.TypeReject, resp.Type, name)
		assert.Contains(t, resp.OtherInfo, reason, name)
	}
	assert.Nil(t, c.Engine())
}

func TestController_Session(t *testing.T) {
	c, s := newController(t)
	ctx := context.Background()

	require.Equal(t, protocol.NewAccept(), c.Handle(ctx, 1, protocol.NewJSON("TOF5s")))
	eng := c.Engine()
	require.NotNil(t, eng)
	assert.Equal(t, "IDLE", eng.CurrentStateName())
	assert.Equal(t, "TOF5s", c.Source())
	assert.Equal(t, 1, s.len())

	assert.Equal(t, protocol.NewJSON("TOF5s"), c.Handle(ctx, 2, protocol.NewRequest()))

	assert.Equal(t, protocol.Empty(), c.Handle(ctx, 1, protocol.NewInput("in", "1")))
	require.Eventually(t, func() bool { return eng.CurrentStateName() == "ACTIVE" }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, protocol.NewStop(), c.Handle(ctx, 1, protocol.NewStop()))
	assert.Equal(t, domain.StatusStopped, eng.Status())

	resp := c.Handle(ctx, 1, protocol.NewInput("in", "0"))
	assert.Equal(t, protocol.NewReject("FSM not running."), resp)
}

func TestController_ReloadStopsPrevious(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	require.Equal(t, protocol.NewAccept(), c.Handle(ctx, 1, protocol.NewJSON("TOF5s")))
	first := c.Engine()

	require.Equal(t, protocol.NewAccept(), c.Handle(ctx, 1, protocol.NewJSON("TOF5s")))
	assert.Equal(t, domain.StatusStopped, first.Status())
	assert.NotSame(t, first, c.Engine())
	assert.Equal(t, domain.StatusRunning, c.Engine().Status())
}

func TestController_PeerRejectStopsMachine(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	require.Equal(t, protocol.NewAccept(), c.Handle(ctx, 1, protocol.NewJSON("TOF5s")))
	assert.Equal(t, protocol.Empty(), c.Handle(ctx, 2, protocol.NewReject("editor closed")))
	assert.Equal(t, domain.StatusStopped, c.Engine().Status())
}
