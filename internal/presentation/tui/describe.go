package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/fsmlink/internal/presentation/graph"
	"github.com/aretw0/fsmlink/pkg/domain"
)

// Describe builds a markdown summary of def. notes is free text shown under
// the title (e.g. the body of a Loam document); warnings come from the linter.
func Describe(def *domain.MachineDef, notes string, warnings []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", def.Name)
	if notes = strings.TrimSpace(notes); notes != "" {
		sb.WriteString(notes + "\n\n")
	}

	sb.WriteString("## Bindings\n\n")
	sb.WriteString("| kind | name | initial |\n|---|---|---|\n")
	for _, n := range def.Inputs {
		fmt.Fprintf(&sb, "| input | `%s` | |\n", cell(n))
	}
	for _, n := range def.Outputs {
		fmt.Fprintf(&sb, "| output | `%s` | |\n", cell(n))
	}
	for _, v := range def.Internals {
		fmt.Fprintf(&sb, "| internal (%s) | `%s` | `%s` |\n", cell(v.Type), cell(v.Name), cell(v.InitialValue))
	}

	sb.WriteString("\n## States\n\n")
	sb.WriteString("| state | flags | action |\n|---|---|---|\n")
	for _, s := range def.States {
		var flags []string
		if s.Initial {
			flags = append(flags, "initial")
		}
		if s.Final {
			flags = append(flags, "final")
		}
		fmt.Fprintf(&sb, "| **%s** | %s | %s |\n", cell(s.Name), strings.Join(flags, ", "), code(s.Action))
	}

	sb.WriteString("\n## Transitions\n\n")
	sb.WriteString("| # | from | to | input | guard | delay |\n|---|---|---|---|---|---|\n")
	for i, t := range def.Transitions {
		input := t.Input
		if input == "" {
			input = "*ε*"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %s |\n",
			i, cell(t.Source), cell(t.Target), cell(input), code(t.Guard), code(t.Delay))
	}

	if len(warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	sb.WriteString("\n## Diagram\n\n```mermaid\n")
	sb.WriteString(graph.GenerateMermaid(def, nil))
	sb.WriteString("```\n")
	return sb.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func code(s string) string {
	if s == "" {
		return ""
	}
	return "`" + cell(s) + "`"
}
