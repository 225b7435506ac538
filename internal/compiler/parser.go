package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/fsmlink/internal/dto"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Parser converts machine files into domain.MachineDef and back.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a machine file. JSON and YAML are both accepted; a document
// starting with '{' is read as JSON.
func (p *Parser) Parse(data []byte) (*domain.MachineDef, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return nil, err
	}
	normalizeLegacyKeys(raw)

	var file dto.MachineFile
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &file,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode machine: %w", err)
	}

	return fromFile(file), nil
}

// Marshal writes def in the JSON machine file format.
func (p *Parser) Marshal(def *domain.MachineDef) ([]byte, error) {
	data, err := json.MarshalIndent(toFile(def), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal machine: %w", err)
	}
	return data, nil
}

func decodeRaw(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("failed to parse machine: empty document")
	}

	raw := make(map[string]any)
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse machine JSON: %w", err)
		}
		return raw, nil
	}

	if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse machine YAML: %w", err)
	}
	return raw, nil
}

// normalizeLegacyKeys accepts the "internals"/"initial" spelling written by older editors.
func normalizeLegacyKeys(raw map[string]any) {
	if _, ok := raw["internal"]; !ok {
		if legacy, ok := raw["internals"]; ok {
			raw["internal"] = legacy
		}
	}
	items, ok := raw["internal"].([]any)
	if !ok {
		return
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["initialValue"]; !ok {
			if v, ok := m["initial"]; ok {
				m["initialValue"] = v
			}
		}
	}
}

func fromFile(f dto.MachineFile) *domain.MachineDef {
	def := &domain.MachineDef{
		Name:    f.Name,
		Inputs:  append([]string{}, f.Inputs...),
		Outputs: append([]string{}, f.Outputs...),
	}
	for _, v := range f.Internal {
		def.Internals = append(def.Internals, domain.InternalVarDef{
			Name:         v.Name,
			Type:         v.Type,
			InitialValue: v.InitialValue,
		})
	}
	for _, s := range f.States {
		def.States = append(def.States, domain.StateDef{
			Name:    s.Name,
			Action:  s.Action,
			Initial: s.IsInitial,
			Final:   s.IsFinal,
		})
	}
	for _, t := range f.Transitions {
		def.Transitions = append(def.Transitions, domain.TransitionDef{
			Source: t.Src,
			Target: t.Dst,
			Input:  t.Input,
			Guard:  t.Cond,
			Delay:  t.Timeout,
		})
	}
	return def
}

func toFile(def *domain.MachineDef) dto.MachineFile {
	f := dto.MachineFile{
		Name:        def.Name,
		Inputs:      append([]string{}, def.Inputs...),
		Outputs:     append([]string{}, def.Outputs...),
		Internal:    []dto.InternalVar{},
		States:      []dto.StateEntry{},
		Transitions: []dto.TransitionRule{},
	}
	for _, v := range def.Internals {
		f.Internal = append(f.Internal, dto.InternalVar{Name: v.Name, Type: v.Type, InitialValue: v.InitialValue})
	}
	for _, s := range def.States {
		f.States = append(f.States, dto.StateEntry{Name: s.Name, Action: s.Action, IsInitial: s.Initial, IsFinal: s.Final})
	}
	for _, t := range def.Transitions {
		f.Transitions = append(f.Transitions, dto.TransitionRule{Src: t.Source, Dst: t.Target, Input: t.Input, Cond: t.Guard, Timeout: t.Delay})
	}
	return f
}
