package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// Type tags a Message on the wire.
type Type string

const (
	TypeLog     Type = "LOG"
	TypeInput   Type = "INPUT"
	TypeStop    Type = "STOP"
	TypeJSON    Type = "JSON"
	TypeAccept  Type = "ACCEPT"
	TypeReject  Type = "REJECT"
	TypeEmpty   Type = "EMPTY"
	TypeRequest Type = "REQUEST"
)

// TimestampLayout is the format of LOG timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ParseType maps a wire tag to a Type. Unknown tags are EMPTY.
func ParseType(s string) Type {
	switch t := Type(s); t {
	case TypeLog, TypeInput, TypeStop, TypeJSON, TypeAccept, TypeReject, TypeEmpty, TypeRequest:
		return t
	default:
		return TypeEmpty
	}
}

// Pair is one named binding value carried by a LOG message.
type Pair struct {
	Name  string
	Value string
}

// Message is the envelope exchanged between the runtime and its peers.
// Only the fields of its Type are meaningful.
type Message struct {
	Type Type

	// INPUT
	InputName  string
	InputValue string

	// JSON
	JSONName string

	// REJECT
	OtherInfo string

	// LOG
	Timestamp      string
	ElementType    domain.ElementKind
	CurrentElement string
	Inputs         []Pair
	Outputs        []Pair
	Internals      []Pair
}

// Empty returns the message that carries nothing.
func Empty() Message { return Message{Type: TypeEmpty} }

// NewInput asks the runtime to inject an input event.
func NewInput(name, value string) Message {
	return Message{Type: TypeInput, InputName: name, InputValue: value}
}

// NewJSON names a machine definition to load, or answers a REQUEST.
func NewJSON(name string) Message { return Message{Type: TypeJSON, JSONName: name} }

// NewReject carries a human-readable reason.
func NewReject(reason string) Message { return Message{Type: TypeReject, OtherInfo: reason} }

// NewStop ends the running machine, or reports that it stopped.
func NewStop() Message { return Message{Type: TypeStop} }

// NewAccept acknowledges a loaded definition.
func NewAccept() Message { return Message{Type: TypeAccept} }

// NewRequest asks which machine definition is loaded.
func NewRequest() Message { return Message{Type: TypeRequest} }

// NewLog builds a LOG message from a bindings snapshot.
func NewLog(ts time.Time, element domain.ElementKind, current string, b domain.Bindings) Message {
	return Message{
		Type:           TypeLog,
		Timestamp:      ts.Format(TimestampLayout),
		ElementType:    element,
		CurrentElement: current,
		Inputs:         PairsOf(b.Inputs),
		Outputs:        PairsOf(b.Outputs),
		Internals:      PairsOf(b.Internals),
	}
}

// FromTrace converts an engine trace to its wire message.
func FromTrace(t domain.Trace) Message {
	if t.Kind == domain.TraceStop {
		return NewStop()
	}
	return NewLog(t.Timestamp, t.Element, t.Name, t.Bindings)
}

// PairsOf returns the entries of m sorted by name. The result is never nil.
func PairsOf(m map[string]string) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{Name: k, Value: v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs
}

// Bindings rebuilds the binding maps carried by a LOG message.
func (m Message) Bindings() domain.Bindings {
	return domain.Bindings{
		Inputs:    toMap(m.Inputs),
		Outputs:   toMap(m.Outputs),
		Internals: toMap(m.Internals),
	}
}

func toMap(pairs []Pair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.Name] = p.Value
	}
	return out
}

func (m Message) String() string {
	switch m.Type {
	case TypeInput:
		return fmt.Sprintf("INPUT %s=%s", m.InputName, m.InputValue)
	case TypeJSON:
		return "JSON " + m.JSONName
	case TypeReject:
		return "REJECT " + m.OtherInfo
	case TypeLog:
		return fmt.Sprintf("LOG %s %s", m.ElementType, m.CurrentElement)
	default:
		return string(m.Type)
	}
}

type (
	inputEntry struct {
		Input string `json:"input"`
		Value string `json:"value"`
	}
	outputEntry struct {
		Output string `json:"output"`
		Value  string `json:"value"`
	}
	internalEntry struct {
		Internal string `json:"internal"`
		Value    string `json:"value"`
	}

	inputFrame struct {
		Type       Type   `json:"type"`
		InputName  string `json:"inputName"`
		InputValue string `json:"inputValue"`
	}
	jsonFrame struct {
		Type     Type   `json:"type"`
		JSONName string `json:"jsonName"`
	}
	rejectFrame struct {
		Type      Type   `json:"type"`
		OtherInfo string `json:"otherInfo"`
	}
	logFrame struct {
		Type           Type            `json:"type"`
		Timestamp      string          `json:"timestamp"`
		ElementType    string          `json:"elementType"`
		CurrentElement string          `json:"currentElement"`
		Inputs         []inputEntry    `json:"inputs"`
		Outputs        []outputEntry   `json:"outputs"`
		Internals      []internalEntry `json:"internals"`
	}
	tagFrame struct {
		Type Type `json:"type"`
	}
)

// Encode serializes msg as one JSON object without the frame terminator.
func Encode(msg Message) ([]byte, error) {
	t := ParseType(string(msg.Type))

	var frame any
	switch t {
	case TypeInput:
		frame = inputFrame{Type: t, InputName: msg.InputName, InputValue: msg.InputValue}
	case TypeJSON:
		frame = jsonFrame{Type: t, JSONName: msg.JSONName}
	case TypeReject:
		frame = rejectFrame{Type: t, OtherInfo: msg.OtherInfo}
	case TypeLog:
		lf := logFrame{
			Type:           t,
			Timestamp:      msg.Timestamp,
			ElementType:    string(msg.ElementType),
			CurrentElement: msg.CurrentElement,
			Inputs:         make([]inputEntry, 0, len(msg.Inputs)),
			Outputs:        make([]outputEntry, 0, len(msg.Outputs)),
			Internals:      make([]internalEntry, 0, len(msg.Internals)),
		}
		for _, p := range sorted(msg.Inputs) {
			lf.Inputs = append(lf.Inputs, inputEntry{Input: p.Name, Value: p.Value})
		}
		for _, p := range sorted(msg.Outputs) {
			lf.Outputs = append(lf.Outputs, outputEntry{Output: p.Name, Value: p.Value})
		}
		for _, p := range sorted(msg.Internals) {
			lf.Internals = append(lf.Internals, internalEntry{Internal: p.Name, Value: p.Value})
		}
		frame = lf
	default:
		frame = tagFrame{Type: t}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // guards such as "value<1" stay readable
	if err := enc.Encode(frame); err != nil {
		return nil, fmt.Errorf("encode %s message: %w", t, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sorted(pairs []Pair) []Pair {
	out := append([]Pair(nil), pairs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
