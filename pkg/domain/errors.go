package domain

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned when an event is injected into an engine that is not running.
var ErrNotRunning = errors.New("engine not running")

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("engine already started")

// ErrDefinitionNotFound is returned by loaders when no machine definition exists for a name.
var ErrDefinitionNotFound = errors.New("machine definition not found")

// DefinitionError reports a machine definition the engine refuses to start.
type DefinitionError struct {
	Reason string
}

func (e *DefinitionError) Error() string {
	return "invalid machine definition: " + e.Reason
}

// ScriptKind names the role of a script.
type ScriptKind string

const (
	ScriptGuard  ScriptKind = "guard"
	ScriptDelay  ScriptKind = "delay"
	ScriptAction ScriptKind = "action"
)

// ScriptError wraps a failed guard, delay or action evaluation.
type ScriptError struct {
	Kind    ScriptKind
	Element string // state name or transition label
	Err     error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s script of %q: %v", e.Kind, e.Element, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
