/*
Package fsmlink runs finite state machines and streams their execution to
connected peers over a line-framed TCP protocol.

A machine is a set of named states and guarded transitions. States carry
entry actions and transitions carry guards and delays, all written as
short Lua scripts over the machine's inputs, outputs and internal
variables. The engine processes one event at a time, so a given sequence
of inputs always produces the same sequence of states.

# Protocol

Peers connect to the listener and exchange JSON messages, each terminated
by the two bytes "\r\n". A peer loads a machine with a JSON message, feeds it
INPUT messages and ends it with STOP. Every response and every execution
trace (LOG) is broadcast to all connected peers, so any number of monitors
can watch the same machine.

	{"type":"JSON","jsonName":"tof5s.json"}
	{"type":"ACCEPT"}
	{"type":"INPUT","inputName":"in","inputValue":"1"}
	{"type":"LOG","elementType":"TRANSITION","currentElement":"in / value == 1",...}
	{"type":"LOG","elementType":"STATE","currentElement":"ACTIVE",...}

# Usage

New builds a Runtime from a configuration: the definition source (a
directory, a Loam repository or Redis), the Lua evaluator, the listener, the
optional Redis trace mirror and the optional admin HTTP API. Run serves until
its context is cancelled.

The fsmlink command exposes the same runtime (fsmlink serve) together with
a small client (send, monitor) and offline tools (validate, describe, fmt,
push, run).
*/
package fsmlink
