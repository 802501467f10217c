// Package goRecover implements email confirmation and password recovery on
// top of an external identity provider: signup confirmation codes, code
// resend, login/logout delegation, and a two-step reset that hands a
// sealed capability token to the client between verifying the emailed
// code and setting the new password.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRecover is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy ([ErrorKind], [KindOf]) and the collaborator
// interfaces [IdentityProvider] and [MailSender]. Code storage, throttling,
// mail queueing and audit dispatch live under internal/ and are never
// exported. The capability codec lives in the public capability package so
// operators can mint keys.
//
// # What this package must NOT do
//
//   - Hash passwords, validate selector/token pairs or enforce their expiry;
//     the identity provider owns all of that.
//   - Return store or provider error text to callers; it is logged instead.
//   - Report mail delivery failures to the caller of a flow.
//   - Import any sub-package that re-imports goRecover (no import cycles).
//
// # Flow ordering
//
// Code verification always runs throttle, sweep, lookup, cross-check,
// then delegation. Consuming a confirmation code is an atomic conditional
// delete: of two concurrent requests for one code, exactly one proceeds.
package goRecover
