package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/fsmlink/internal/presentation/graph"
	"github.com/aretw0/fsmlink/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		def      *domain.MachineDef
		overlay  *graph.Overlay
		contains []string
	}{
		{
			name: "Initial And Final",
			def: &domain.MachineDef{
				States: []domain.StateDef{{Name: "IDLE", Initial: true}, {Name: "DONE", Final: true}},
			},
			contains: []string{
				"[*] --> IDLE",
				"DONE --> [*]",
			},
		},
		{
			name: "Transition Labels",
			def: &domain.MachineDef{
				States: []domain.StateDef{{Name: "A", Initial: true}, {Name: "B"}},
				Transitions: []domain.TransitionDef{
					{Source: "A", Target: "B", Input: "in", Guard: `mode == "on"`},
					{Source: "B", Target: "A", Delay: "timeout"},
					{Source: "B", Target: "B"},
				},
			},
			contains: []string{
				"A --> B : in / mode == 'on'",
				"B --> A : ⏱ timeout",
				"B --> B\n",
			},
		},
		{
			name: "ID Sanitization",
			def: &domain.MachineDef{
				States: []domain.StateDef{{Name: "wait-for.it", Initial: true}},
			},
			contains: []string{
				`state "wait-for.it" as wait_for_it`,
				"[*] --> wait_for_it",
			},
		},
		{
			name: "Overlay",
			def: &domain.MachineDef{
				States: []domain.StateDef{{Name: "A", Initial: true}, {Name: "B"}},
			},
			overlay: &graph.Overlay{Visited: []string{"A", "A"}, Current: "B"},
			contains: []string{
				"class A visited",
				"class B current",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.def, tt.overlay)
			if !strings.HasPrefix(got, "stateDiagram-v2\n") {
				t.Errorf("GenerateMermaid() missing header:\n%v", got)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
		})
	}
}

func TestGenerateMermaid_VisitedOnce(t *testing.T) {
	def := &domain.MachineDef{States: []domain.StateDef{{Name: "A", Initial: true}}}
	got := graph.GenerateMermaid(def, &graph.Overlay{Visited: []string{"A", "A"}})
	if n := strings.Count(got, "class A visited"); n != 1 {
		t.Errorf("visited class applied %d times, want 1", n)
	}
}
