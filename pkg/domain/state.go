package domain

import "time"

// ExecutionStatus describes the lifecycle of an engine.
type ExecutionStatus string

const (
	StatusNotStarted ExecutionStatus = "not_started"
	StatusRunning    ExecutionStatus = "running"
	StatusStopped    ExecutionStatus = "stopped" // terminal
)

// Bindings holds the runtime values of a machine.
// Only the engine mutates them: injected events write Inputs, scripts write
// Outputs and Internals.
type Bindings struct {
	Inputs    map[string]string `json:"inputs"`
	Outputs   map[string]string `json:"outputs"`
	Internals map[string]string `json:"internals"`
}

// NewBindings creates empty bindings with internals seeded from their initial values.
func NewBindings(internals []InternalVarDef) Bindings {
	b := Bindings{
		Inputs:    make(map[string]string),
		Outputs:   make(map[string]string),
		Internals: make(map[string]string, len(internals)),
	}
	for _, v := range internals {
		b.Internals[v.Name] = v.InitialValue
	}
	return b
}

// Clone deep-copies the bindings so the copy can be mutated safely.
func (b Bindings) Clone() Bindings {
	return Bindings{
		Inputs:    cloneMap(b.Inputs),
		Outputs:   cloneMap(b.Outputs),
		Internals: cloneMap(b.Internals),
	}
}

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Snapshot is a read-only copy of the engine's active configuration.
type Snapshot struct {
	Machine   string          `json:"machine"`
	State     string          `json:"state"`
	Status    ExecutionStatus `json:"status"`
	EnteredAt time.Time       `json:"entered_at"`
	Bindings  Bindings        `json:"bindings"`
}
