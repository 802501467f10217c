// Package rate provides the Redis-backed throttle guard used in front of
// verification-code lookups.
//
// # Window semantics
//
// Sliding-window log: each admitted attempt is a sorted-set member scored by
// its start time in milliseconds. A check trims members older than the
// window, counts the rest and admits only while the count is below the
// limit. Key layout: <prefix>:<action>:<actor>.
//
// # What this package must NOT do
//
//   - Decide which actions are throttled or with which budget.
//   - Retry rejected attempts or queue them for later.
//   - Be imported outside the goRecover module.
package rate
