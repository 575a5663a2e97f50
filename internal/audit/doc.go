// Package audit implements the audit event model, sinks, and the async
// dispatcher used for security-relevant outcomes.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: append-only record with actor, action, outcome, severity and context.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine and flow functions. Durable sinks
// (SQLite, MQTT) live in store/sqlite and sink/mqtt.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goTrust or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
