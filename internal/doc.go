// Package internal contains helper utilities that are intentionally private to goRecover,
// chiefly secure random generation of codes and opaque secrets.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - mailqueue — worker pool delivering verification mail after a flow commits
//   - rate — Redis-backed sliding-window throttle
//   - schedule — cron runner for background jobs such as the expired-code sweep
//   - stores — verification code stores (Redis, Postgres)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRecover API.
//   - Be imported by any package outside the goRecover module.
package internal
