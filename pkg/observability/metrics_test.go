package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/observability"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()
	t0 := time.Now()

	hooks.OnStateEnter(ctx, &domain.StateEvent{Timestamp: t0, Machine: "TOF5s", State: "IDLE"})
	hooks.OnStateExit(ctx, &domain.StateEvent{Timestamp: t0.Add(time.Second), Machine: "TOF5s", State: "IDLE"})
	hooks.OnTransition(ctx, &domain.TransitionEvent{Machine: "TOF5s", Def: domain.TransitionDef{Source: "IDLE", Target: "ACTIVE"}})
	hooks.OnScriptError(ctx, &domain.ScriptError{Kind: domain.ScriptGuard, Err: errors.New("x")})

	for _, name := range []string{
		"fsmlink_state_entries_total",
		"fsmlink_state_duration_seconds",
		"fsmlink_transitions_total",
		"fsmlink_script_errors_total",
	} {
		n, err := testutil.GatherAndCount(m.Registry(), name)
		require.NoError(t, err)
		assert.Equal(t, 1, n, name)
	}
}

func TestMetrics_Transport(t *testing.T) {
	m := observability.NewMetrics()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.FrameReceived(protocol.TypeInput)
	m.FrameSent(protocol.TypeLog, 3)
	m.PeerPruned()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "fsmlink_connections 1")
	assert.Contains(t, body, `fsmlink_frames_received_total{type="INPUT"} 1`)
	assert.Contains(t, body, `fsmlink_frames_sent_total{type="LOG"} 3`)
	assert.Contains(t, body, "fsmlink_peers_pruned_total 1")
}

func TestCombineHooks(t *testing.T) {
	var order []string
	a := domain.LifecycleHooks{OnStateEnter: func(context.Context, *domain.StateEvent) { order = append(order, "a") }}
	b := domain.LifecycleHooks{
		OnStateEnter: func(context.Context, *domain.StateEvent) { order = append(order, "b") },
		OnTransition: func(context.Context, *domain.TransitionEvent) { order = append(order, "t") },
	}

	h := observability.CombineHooks(a, domain.LifecycleHooks{}, b)
	h.OnStateEnter(context.Background(), &domain.StateEvent{})
	h.OnTransition(context.Background(), &domain.TransitionEvent{})

	assert.Equal(t, []string{"a", "b", "t"}, order)
	assert.Nil(t, h.OnStateExit)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	h := observability.LoggingHooks(slog.New(slog.NewTextHandler(&buf, nil)))

	h.OnTransition(context.Background(), &domain.TransitionEvent{
		Machine: "TOF5s",
		Def:     domain.TransitionDef{Source: "IDLE", Target: "ACTIVE", Input: "in", Guard: "value==1"},
	})

	assert.Contains(t, buf.String(), "msg=transition")
	assert.Contains(t, buf.String(), `label="in / value==1"`)
}
