package domain

import (
	"context"
	"time"
)

// TraceKind distinguishes the traces an engine emits.
type TraceKind string

const (
	TraceLog  TraceKind = "log"
	TraceStop TraceKind = "stop"
)

// ElementKind is the kind of machine element a LOG trace refers to.
type ElementKind string

const (
	ElementState      ElementKind = "STATE"
	ElementTransition ElementKind = "TRANSITION"
)

// Trace is a single observation emitted by the engine.
type Trace struct {
	Kind      TraceKind
	Timestamp time.Time
	Element   ElementKind
	Name      string // state name or transition label
	Bindings  Bindings
}

// StateEvent represents entry or exit from a state.
type StateEvent struct {
	Timestamp time.Time
	Machine   string
	State     string
}

// TransitionEvent represents a taken transition.
type TransitionEvent struct {
	Timestamp time.Time
	Machine   string
	Index     int
	Def       TransitionDef
}

// LifecycleHooks defines callbacks for engine observability.
// They run synchronously on the engine loop and must not block.
type LifecycleHooks struct {
	OnStateEnter  func(context.Context, *StateEvent)
	OnStateExit   func(context.Context, *StateEvent)
	OnTransition  func(context.Context, *TransitionEvent)
	OnScriptError func(context.Context, *ScriptError)
}
