/*
Package ports defines the driven ports (interfaces) of the fsmlink runtime.

These interfaces decouple the engine from the scripting runtime, the storage of
machine definitions and the transport that carries traces.

# Key Interfaces

  - Evaluator: runs guard, delay and action scripts against a domain.Scope.
  - DefinitionLoader: resolves a machine name to the raw machine file.
  - TraceSink: receives the traces an engine emits, fire-and-forget.
*/
package ports
