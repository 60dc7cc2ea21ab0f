// Package audit implements async event dispatching for guard decisions and
// session lifecycle events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics,
//     retained event types, and drop counts per event type.
//   - [Event]: structured audit record with timestamp, type, user, subject, path, IP.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the Engine and Navigator do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on access decisions.
//   - Import goGuard or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
