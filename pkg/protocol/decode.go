package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/fsmlink/pkg/domain"
)

// text accepts a JSON string, number or boolean. Anything else reads as "".
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	case '{', '[', 'n':
		*t = ""
	default:
		*t = text(b)
	}
	return nil
}

type entry struct {
	Input    text `json:"input"`
	Output   text `json:"output"`
	Internal text `json:"internal"`
	Var      text `json:"var"`
	Value    text `json:"value"`
}

type frame struct {
	Type           text    `json:"type"`
	InputName      text    `json:"inputName"`
	InputValue     text    `json:"inputValue"`
	JSONName       text    `json:"jsonName"`
	OtherInfo      text    `json:"otherInfo"`
	Timestamp      text    `json:"timestamp"`
	ElementType    text    `json:"elementType"`
	CurrentElement text    `json:"currentElement"`
	Inputs         []entry `json:"inputs"`
	Outputs        []entry `json:"outputs"`
	Internals      []entry `json:"internals"`
}

// Parse decodes one frame. Malformed JSON yields an EMPTY message and an
// error; an unknown type tag yields EMPTY without error.
func Parse(b []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(bytes.TrimSpace(b), &f); err != nil {
		return Empty(), fmt.Errorf("malformed frame: %w", err)
	}

	msg := Message{Type: ParseType(string(f.Type))}
	switch msg.Type {
	case TypeInput:
		msg.InputName, msg.InputValue = string(f.InputName), string(f.InputValue)
	case TypeJSON:
		msg.JSONName = string(f.JSONName)
	case TypeReject:
		msg.OtherInfo = string(f.OtherInfo)
	case TypeLog:
		msg.Timestamp = string(f.Timestamp)
		msg.ElementType = domain.ElementKind(f.ElementType)
		msg.CurrentElement = string(f.CurrentElement)
		msg.Inputs = make([]Pair, 0, len(f.Inputs))
		for _, e := range f.Inputs {
			msg.Inputs = append(msg.Inputs, Pair{Name: string(e.Input), Value: string(e.Value)})
		}
		msg.Outputs = make([]Pair, 0, len(f.Outputs))
		for _, e := range f.Outputs {
			msg.Outputs = append(msg.Outputs, Pair{Name: string(e.Output), Value: string(e.Value)})
		}
		msg.Internals = make([]Pair, 0, len(f.Internals))
		for _, e := range f.Internals {
			name := e.Internal
			if name == "" {
				name = e.Var
			}
			msg.Internals = append(msg.Internals, Pair{Name: string(name), Value: string(e.Value)})
		}
	}
	return msg, nil
}

// Decode is Parse without the error: anything unreadable is EMPTY.
func Decode(b []byte) Message {
	msg, _ := Parse(b)
	return msg
}
