package loam

// MachineMetadata is the frontmatter (or JSON body) of a machine document.
// Entries stay loosely typed here; the compiler does the typed decoding.
type MachineMetadata struct {
	Name        string           `json:"name,omitempty" mapstructure:"name"`
	Inputs      []string         `json:"inputs" mapstructure:"inputs"`
	Outputs     []string         `json:"outputs" mapstructure:"outputs"`
	Internal    []map[string]any `json:"internal" mapstructure:"internal"`
	States      []map[string]any `json:"states" mapstructure:"states"`
	Transitions []map[string]any `json:"transitions" mapstructure:"transitions"`
}
