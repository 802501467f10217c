// Package stores persists short-lived verification codes: the binding
// between a numeric OTP, the address it was sent to and the identity
// provider's selector/token pair.
//
// # Design
//
// [RedisCodeStore] keeps each code as a hash with secondary index sets by
// code and by email plus an expiry sorted set; every operation runs as one
// Lua script. [PostgresCodeStore] keeps the same rows in a SQL table.
// Both treat a row as live while expires_at >= now, and both implement
// DeleteByCodeAndEmail as an atomic conditional delete that reports how
// many rows it removed. A caller that sees zero lost the race.
//
// # Architecture boundaries
//
// This package owns persistence and the atomic-consume guarantee. It does
// NOT generate codes, throttle lookups, compare emails or talk to the
// identity provider; the Engine does that.
//
// # What this package must NOT do
//
//   - Import goRecover or any sibling internal package.
//   - Expose driver error text through anything but a wrapped ErrStoreUnavailable.
package stores
