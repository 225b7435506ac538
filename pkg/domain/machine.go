package domain

// InternalVarDef declares an internal variable and its value at engine start.
type InternalVarDef struct {
	Name         string
	Type         string
	InitialValue string
}

// StateDef describes a single state of the machine.
type StateDef struct {
	Name string

	// Action is the script run every time the state becomes active.
	Action string

	Initial bool
	Final   bool
}

// TransitionDef is a rule to move from Source to Target.
type TransitionDef struct {
	Source string
	Target string

	// Input is the name of the input event that triggers the transition.
	// Empty marks an epsilon transition, evaluated right after state entry.
	Input string

	// Guard must evaluate to boolean true for the transition to be taken.
	// Empty means unconditional.
	Guard string

	// Delay evaluates to a number of milliseconds the transition waits,
	// once its guard passed, before it is taken.
	Delay string
}

// Label renders the transition the way traces report it, e.g. "in / value==1".
func (t TransitionDef) Label() string {
	switch {
	case t.Input == "" && t.Guard == "":
		return t.Source + " -> " + t.Target
	case t.Guard == "":
		return t.Input
	default:
		return t.Input + " / " + t.Guard
	}
}

// MachineDef is the static description of a machine.
// It is built once at load time and never mutated afterwards.
type MachineDef struct {
	Name        string
	Inputs      []string
	Outputs     []string
	Internals   []InternalVarDef
	States      []StateDef
	Transitions []TransitionDef
}

// State looks a state up by name.
func (m *MachineDef) State(name string) (StateDef, bool) {
	for _, s := range m.States {
		if s.Name == name {
			return s, true
		}
	}
	return StateDef{}, false
}

// InitialState returns the first state flagged as initial.
func (m *MachineDef) InitialState() (StateDef, bool) {
	for _, s := range m.States {
		if s.Initial {
			return s, true
		}
	}
	return StateDef{}, false
}

// Outgoing returns the indices of the transitions leaving the given state,
// in declaration order.
func (m *MachineDef) Outgoing(state string) []int {
	var out []int
	for i, t := range m.Transitions {
		if t.Source == state {
			out = append(out, i)
		}
	}
	return out
}

// IsInternal reports whether name is a declared internal variable.
func (m *MachineDef) IsInternal(name string) bool {
	for _, v := range m.Internals {
		if v.Name == name {
			return true
		}
	}
	return false
}
