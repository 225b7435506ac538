package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of one runtime.
// It implements transport.Metrics and produces engine hooks.
type Metrics struct {
	registry *prometheus.Registry

	stateEntries  *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	scriptErrors  *prometheus.CounterVec
	stateDuration *prometheus.HistogramVec
	connections   prometheus.Gauge
	framesIn      *prometheus.CounterVec
	framesOut     *prometheus.CounterVec
	pruned        prometheus.Counter
	dropped       prometheus.Counter

	mu      sync.Mutex
	entered map[string]time.Time // machine -> entry time of its active state
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stateEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fsmlink_state_entries_total", Help: "Total number of state entries"},
			[]string{"machine", "state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fsmlink_transitions_total", Help: "Total number of transitions taken"},
			[]string{"machine", "source", "target"},
		),
		scriptErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fsmlink_script_errors_total", Help: "Failed guard, delay and action evaluations"},
			[]string{"kind"},
		),
		stateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fsmlink_state_duration_seconds",
				Help:    "Time spent in a state before leaving it",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"machine", "state"},
		),
		connections: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "fsmlink_connections", Help: "Currently connected peers"},
		),
		framesIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fsmlink_frames_received_total", Help: "Frames received by type"},
			[]string{"type"},
		),
		framesOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "fsmlink_frames_sent_total", Help: "Frames written to peers by type"},
			[]string{"type"},
		),
		pruned: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "fsmlink_peers_pruned_total", Help: "Connections dropped after a failed send"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "fsmlink_outbox_dropped_total", Help: "Messages dropped because the outbox was full"},
		),
		entered: make(map[string]time.Time),
	}
	m.registry.MustRegister(
		m.stateEntries, m.transitions, m.scriptErrors, m.stateDuration,
		m.connections, m.framesIn, m.framesOut, m.pruned, m.dropped,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns engine hooks recording state and transition metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.stateEntries.WithLabelValues(e.Machine, e.State).Inc()
			m.mu.Lock()
			m.entered[e.Machine] = e.Timestamp
			m.mu.Unlock()
		},
		OnStateExit: func(_ context.Context, e *domain.StateEvent) {
			m.mu.Lock()
			since, ok := m.entered[e.Machine]
			m.mu.Unlock()
			if ok {
				m.stateDuration.WithLabelValues(e.Machine, e.State).Observe(e.Timestamp.Sub(since).Seconds())
			}
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(e.Machine, e.Def.Source, e.Def.Target).Inc()
		},
		OnScriptError: func(_ context.Context, e *domain.ScriptError) {
			m.scriptErrors.WithLabelValues(string(e.Kind)).Inc()
		},
	}
}

func (m *Metrics) ConnectionOpened() { m.connections.Inc() }
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }
func (m *Metrics) PeerPruned()       { m.pruned.Inc() }
func (m *Metrics) OutboxDropped()    { m.dropped.Inc() }

func (m *Metrics) FrameReceived(t protocol.Type) {
	m.framesIn.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) FrameSent(t protocol.Type, peers int) {
	m.framesOut.WithLabelValues(string(t)).Add(float64(peers))
}
