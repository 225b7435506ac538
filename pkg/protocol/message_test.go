package protocol_test

import (
	"testing"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	assert.Equal(t, protocol.TypeLog, protocol.ParseType("LOG"))
	assert.Equal(t, protocol.TypeRequest, protocol.ParseType("REQUEST"))
	assert.Equal(t, protocol.TypeEmpty, protocol.ParseType("log"))
	assert.Equal(t, protocol.TypeEmpty, protocol.ParseType("SHUTDOWN"))
	assert.Equal(t, protocol.TypeEmpty, protocol.ParseType(""))
}

func TestEncode_Shapes(t *testing.T) {
	cases := []struct {
		msg  protocol.Message
		want string
	}{
		{protocol.NewInput("in", "1"), `{"type":"INPUT","inputName":"in","inputValue":"1"}`},
		{protocol.NewJSON("tof5s.json"), `{"type":"JSON","jsonName":"tof5s.json"}`},
		{protocol.NewReject("FSM not initialized."), `{"type":"REJECT","otherInfo":"FSM not initialized."}`},
		{protocol.NewStop(), `{"type":"STOP"}`},
		{protocol.NewAccept(), `{"type":"ACCEPT"}`},
		{protocol.NewRequest(), `{"type":"REQUEST"}`},
		{protocol.Empty(), `{"type":"EMPTY"}`},
		{protocol.Message{Type: "BOGUS", InputName: "x"}, `{"type":"EMPTY"}`},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			b, err := protocol.Encode(tc.msg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(b))
		})
	}
}

func TestEncode_Log(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := protocol.NewLog(ts, domain.ElementTransition, "in / value<1", domain.Bindings{
		Inputs:    map[string]string{"in": "1", "aux": "0"},
		Internals: map[string]string{"timeout": "5000"},
	})

	b, err := protocol.Encode(msg)
	require.NoError(t, err)

	want := `{"type":"LOG","timestamp":"2024-03-01T10:00:00.000Z","elementType":"TRANSITION","currentElement":"in / value<1",` +
		`"inputs":[{"input":"aux","value":"0"},{"input":"in","value":"1"}],"outputs":[],"internals":[{"internal":"timeout","value":"5000"}]}`
	assert.Equal(t, want, string(b))

	back, err := protocol.Parse(b)
	require.NoError(t, err)
	assert.Equal(t, msg, back)
}

func TestParse_Tolerant(t *testing.T) {
	msg, err := protocol.Parse([]byte(`{"type":"INPUT","inputName":"in","inputValue":1}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewInput("in", "1"), msg)

	msg, err = protocol.Parse([]byte(`{"type":"INPUT","inputName":"flag","inputValue":true}`))
	require.NoError(t, err)
	assert.Equal(t, "true", msg.InputValue)

	msg, err = protocol.Parse([]byte(`{"type":"INPUT"}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewInput("", ""), msg)

	msg, err = protocol.Parse([]byte(`{"type":"REJECT","otherInfo":null}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewReject(""), msg)
}

func TestParse_LegacyVarKey(t *testing.T) {
	msg, err := protocol.Parse([]byte(`{"type":"LOG","elementType":"STATE","currentElement":"IDLE","internals":[{"var":"count","value":"3"}]}`))
	require.NoError(t, err)

	assert.Equal(t, []protocol.Pair{{Name: "count", Value: "3"}}, msg.Internals)
	assert.Empty(t, msg.Inputs)
	assert.NotNil(t, msg.Inputs)
	assert.Equal(t, map[string]string{"count": "3"}, msg.Bindings().Internals)
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{``, `{`, `[]`, `"LOG"`, `{"type":"LOG",}`} {
		msg, err := protocol.Parse([]byte(raw))
		assert.Error(t, err, raw)
		assert.Equal(t, protocol.TypeEmpty, msg.Type, raw)
		assert.Equal(t, protocol.TypeEmpty, protocol.Decode([]byte(raw)).Type, raw)
	}
}

func TestParse_UnknownType(t *testing.T) {
	msg, err := protocol.Parse([]byte(`{"type":"DANCE","inputName":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.Empty(), msg)
}

func TestFromTrace(t *testing.T) {
	stop := protocol.FromTrace(domain.Trace{Kind: domain.TraceStop, Name: "end"})
	assert.Equal(t, protocol.NewStop(), stop)

	log := protocol.FromTrace(domain.Trace{
		Kind:      domain.TraceLog,
		Timestamp: time.Now(),
		Element:   domain.ElementState,
		Name:      "IDLE",
		Bindings:  domain.Bindings{Outputs: map[string]string{"out": "0"}},
	})
	assert.Equal(t, protocol.TypeLog, log.Type)
	assert.Equal(t, "IDLE", log.CurrentElement)
	assert.Equal(t, []protocol.Pair{{Name: "out", Value: "0"}}, log.Outputs)
	assert.NotNil(t, log.Inputs)
}
