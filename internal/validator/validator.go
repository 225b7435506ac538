package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// Validate checks the invariants the engine relies on. It returns a
// *domain.DefinitionError describing the first violation found.
func Validate(def *domain.MachineDef) error {
	if def == nil {
		return &domain.DefinitionError{Reason: "no machine definition"}
	}
	if len(def.States) == 0 {
		return &domain.DefinitionError{Reason: "machine has no states"}
	}

	seen := make(map[string]bool, len(def.States))
	var initials []string
	for _, s := range def.States {
		if s.Name == "" {
			return &domain.DefinitionError{Reason: "state with empty name"}
		}
		if seen[s.Name] {
			return &domain.DefinitionError{Reason: fmt.Sprintf("duplicate state %q", s.Name)}
		}
		seen[s.Name] = true
		if s.Initial {
			initials = append(initials, s.Name)
		}
	}

	switch len(initials) {
	case 0:
		return &domain.DefinitionError{Reason: "no initial state"}
	case 1:
	default:
		return &domain.DefinitionError{Reason: fmt.Sprintf("ambiguous initial state: %s", strings.Join(initials, ", "))}
	}

	for i, t := range def.Transitions {
		if !seen[t.Source] {
			return &domain.DefinitionError{Reason: fmt.Sprintf("transition %d (%s -> %s): unknown source state %q", i, t.Source, t.Target, t.Source)}
		}
		if !seen[t.Target] {
			return &domain.DefinitionError{Reason: fmt.Sprintf("transition %d (%s -> %s): unknown target state %q", i, t.Source, t.Target, t.Target)}
		}
	}

	return nil
}

// Lint reports suspicious but executable constructs: unreachable states,
// undeclared inputs and transitions leaving a final state.
// It assumes def already passed Validate.
func Lint(def *domain.MachineDef) []string {
	var warnings []string

	declared := make(map[string]bool, len(def.Inputs))
	for _, in := range def.Inputs {
		declared[in] = true
	}

	for i, t := range def.Transitions {
		if t.Input != "" && !declared[t.Input] {
			warnings = append(warnings, fmt.Sprintf("transition %d (%s -> %s) waits for undeclared input %q", i, t.Source, t.Target, t.Input))
		}
		if s, ok := def.State(t.Source); ok && s.Final {
			warnings = append(warnings, fmt.Sprintf("transition %d leaves final state %q and can never fire", i, t.Source))
		}
	}

	initial, ok := def.InitialState()
	if !ok {
		return warnings
	}

	// Crawl from the initial state
	visited := map[string]bool{initial.Name: true}
	queue := []string{initial.Name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, idx := range def.Outgoing(current) {
			target := def.Transitions[idx].Target
			if !visited[target] {
				visited[target] = true
				queue = append(queue, target)
			}
		}
	}

	for _, s := range def.States {
		if !visited[s.Name] {
			warnings = append(warnings, fmt.Sprintf("state %q is unreachable from %q", s.Name, initial.Name))
		}
	}

	return warnings
}
