// Package audit implements async event dispatching for recovery flow outcomes.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured audit record with timestamp, flow, subject, IP, outcome, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit — that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goRecover or any sibling internal package.
//   - Record verification codes, selector/token pairs or passwords.
package audit
