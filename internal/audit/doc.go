// Package audit provides the structured audit event model and sinks for
// authflow observability.
//
// # Design
//
// Events are emitted by the controller through an asynchronous Dispatcher
// that forwards them to a single Sink. The dispatcher buffers events in a
// bounded channel; when DropIfFull is set, a full buffer drops the event and
// counts it instead of blocking the auth path.
//
// # Architecture boundaries
//
// This package owns the event model, the sink implementations, and
// dispatching. Event type names and error codes live in the root package.
//
// # What this package must NOT do
//
//   - Perform network calls itself (sinks own their own I/O).
//   - Import authflow or any sibling package.
package audit
