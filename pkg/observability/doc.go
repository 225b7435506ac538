/*
Package observability exposes the runtime to operators.

It provides prometheus metrics fed by engine lifecycle hooks and transport
counters, slog-based audit hooks, and a helper to combine several hook sets
into one.
*/
package observability
