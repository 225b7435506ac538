package dto

// MachineFile is the on-disk and on-wire shape of a machine definition.
// It uses "mapstructure" tags so JSON and YAML sources decode through the same path.
type MachineFile struct {
	Name        string           `json:"name" mapstructure:"name"`
	Inputs      []string         `json:"inputs" mapstructure:"inputs"`
	Outputs     []string         `json:"outputs" mapstructure:"outputs"`
	Internal    []InternalVar    `json:"internal" mapstructure:"internal"`
	States      []StateEntry     `json:"states" mapstructure:"states"`
	Transitions []TransitionRule `json:"transitions" mapstructure:"transitions"`
}

type InternalVar struct {
	Name         string `json:"name" mapstructure:"name"`
	Type         string `json:"type" mapstructure:"type"`
	InitialValue string `json:"initialValue" mapstructure:"initialValue"`
}

type StateEntry struct {
	Name      string `json:"name" mapstructure:"name"`
	Action    string `json:"action" mapstructure:"action"`
	IsInitial bool   `json:"isInitial" mapstructure:"isInitial"`
	IsFinal   bool   `json:"isFinal" mapstructure:"isFinal"`
}

type TransitionRule struct {
	Src     string `json:"src" mapstructure:"src"`
	Dst     string `json:"dst" mapstructure:"dst"`
	Input   string `json:"input" mapstructure:"input"`
	Cond    string `json:"cond" mapstructure:"cond"`
	Timeout string `json:"timeout,omitempty" mapstructure:"timeout"`
}
