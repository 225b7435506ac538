/*
Package domain contains the core domain models of the fsmlink runtime.

It defines the static description of a machine and the runtime values the engine
mutates while executing it. This package is kept pure and free of I/O, transport
and scripting concerns.

# Key Entities

  - MachineDef: immutable description of states, transitions, I/O names and internal variables.
  - Bindings: the three name->value maps (inputs, outputs, internals) owned by the engine.
  - Scope: the staged view of Bindings a script runs against.
  - Trace: a state entry, a transition or a stop, emitted by the engine for observers.
  - Snapshot: a read-only copy of the engine's active configuration and bindings.
*/
package domain
