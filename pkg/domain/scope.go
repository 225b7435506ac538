package domain

import "time"

// Scope is the view of the bindings a guard, delay or action script runs against.
//
// The maps are staged copies: an evaluator may write Outputs and Internals
// freely, and the engine commits them only if the evaluation succeeds.
type Scope struct {
	Inputs    map[string]string
	Outputs   map[string]string
	Internals map[string]string

	// Value is the value carried by the event that triggered the evaluation.
	Value string

	since time.Time
	now   func() time.Time
}

// NewScope stages a copy of b for a script evaluation.
func NewScope(b Bindings, value string, since time.Time, now func() time.Time) *Scope {
	staged := b.Clone()
	if now == nil {
		now = time.Now
	}
	return &Scope{
		Inputs:    staged.Inputs,
		Outputs:   staged.Outputs,
		Internals: staged.Internals,
		Value:     value,
		since:     since,
		now:       now,
	}
}

// Output writes a named output. Names declared as internal variables write the internal.
func (s *Scope) Output(name, value string) {
	if _, ok := s.Internals[name]; ok {
		s.Internals[name] = value
		return
	}
	s.Outputs[name] = value
}

// Elapsed is the time since the current state became active.
func (s *Scope) Elapsed() time.Duration {
	if s.since.IsZero() {
		return 0
	}
	return s.now().Sub(s.since)
}

// Defined reports whether the input has received a value.
func (s *Scope) Defined(name string) bool {
	_, ok := s.Inputs[name]
	return ok
}

// Bindings returns the staged maps as Bindings.
func (s *Scope) Bindings() Bindings {
	return Bindings{Inputs: s.Inputs, Outputs: s.Outputs, Internals: s.Internals}
}
