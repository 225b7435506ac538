package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// Overlay marks live execution data on the diagram.
type Overlay struct {
	Visited []string
	Current string
}

// GenerateMermaid renders def as a Mermaid state diagram.
// The initial state gets an entry arrow from [*] and final states an exit
// arrow to [*]. Transition edges carry their trace label and, when delayed,
// a clock annotation with the delay expression.
func GenerateMermaid(def *domain.MachineDef, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")

	for _, s := range def.States {
		id := sanitizeMermaidID(s.Name)
		if id != s.Name {
			sb.WriteString(fmt.Sprintf("    state \"%s\" as %s\n", escape(s.Name), id))
		}
		if s.Initial {
			sb.WriteString(fmt.Sprintf("    [*] --> %s\n", id))
		}
	}

	for _, t := range def.Transitions {
		label := t.Label()
		if t.Input == "" && t.Guard == "" {
			label = ""
		}
		if t.Delay != "" {
			label = strings.TrimSpace(label + " ⏱ " + t.Delay)
		}
		line := fmt.Sprintf("    %s --> %s", sanitizeMermaidID(t.Source), sanitizeMermaidID(t.Target))
		if label != "" {
			line += " : " + escape(label)
		}
		sb.WriteString(line + "\n")
	}

	for _, s := range def.States {
		if s.Final {
			sb.WriteString(fmt.Sprintf("    %s --> [*]\n", sanitizeMermaidID(s.Name)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")

		seen := make(map[string]bool)
		for _, name := range overlay.Visited {
			id := sanitizeMermaidID(name)
			if id != "" && !seen[id] {
				seen[id] = true
				sb.WriteString(fmt.Sprintf("    class %s visited\n", id))
			}
		}
		if overlay.Current != "" {
			sb.WriteString(fmt.Sprintf("    class %s current\n", sanitizeMermaidID(overlay.Current)))
		}
	}

	return sb.String()
}

// escape keeps labels on one line and away from Mermaid's separators.
func escape(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, ":", "#58;")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}
