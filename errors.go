package goRecover

import (
	"context"
	"errors"
)

// ErrorKind is the transport-facing tag of a failed operation. Every error
// returned by an Engine flow maps to exactly one kind through [KindOf].
type ErrorKind string

const (
	KindInvalidEmail               ErrorKind = "InvalidEmail"
	KindInvalidPassword            ErrorKind = "InvalidPassword"
	KindUnknownUser                ErrorKind = "UnknownUser"
	KindUserAlreadyExists          ErrorKind = "UserAlreadyExists"
	KindEmailNotVerified           ErrorKind = "EmailNotVerified"
	KindResetDisabled              ErrorKind = "ResetDisabled"
	KindInvalidOrExpiredCode       ErrorKind = "InvalidOrExpiredCode"
	KindInvalidSelectorTokenPair   ErrorKind = "InvalidSelectorTokenPair"
	KindTokenExpired               ErrorKind = "TokenExpired"
	KindNoPriorConfirmationRequest ErrorKind = "NoPriorConfirmationRequest"
	KindTooManyRequests            ErrorKind = "TooManyRequests"
	KindNotLoggedIn                ErrorKind = "NotLoggedIn"
	KindDecodeError                ErrorKind = "DecodeError"
	KindStorageError               ErrorKind = "StorageError"
	KindUpstreamError              ErrorKind = "UpstreamError"
)

var (
	// ErrInvalidEmail is returned when the address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword is returned when a password is rejected by policy or does not match.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnknownUser is returned when no account matches the identifier.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUserAlreadyExists is returned when the email or username is taken, or the email is already confirmed.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrEmailNotVerified is returned when a reset is requested for an unconfirmed address.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrResetDisabled is returned when the account does not allow password resets.
	ErrResetDisabled = errors.New("password reset disabled")
	// ErrInvalidOrExpiredCode is returned for an unknown, expired, consumed or mismatched verification code.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrInvalidSelectorTokenPair is returned by the identity provider for an unknown selector/token pair.
	ErrInvalidSelectorTokenPair = errors.New("invalid selector/token pair")
	// ErrTokenExpired is returned by the identity provider for an expired or already used pair.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoPriorConfirmationRequest is returned when a code resend has nothing to resend.
	ErrNoPriorConfirmationRequest = errors.New("no prior confirmation request")
	// ErrTooManyRequests is returned when a throttle budget is exhausted. Never retried.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrNotLoggedIn is returned by logout without a valid session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrDecode is returned when a capability token is tampered or malformed.
	ErrDecode = errors.New("invalid reset payload")
	// ErrStorage is returned when the code store or throttle backend fails.
	ErrStorage = errors.New("storage error")
	// ErrUpstream is returned when the identity provider fails outside the taxonomy.
	ErrUpstream = errors.New("upstream error")

	// ErrEngineNotReady is returned by methods of a nil or incompletely built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidEmail, KindInvalidEmail},
	{ErrInvalidPassword, KindInvalidPassword},
	{ErrUnknownUser, KindUnknownUser},
	{ErrUserAlreadyExists, KindUserAlreadyExists},
	{ErrEmailNotVerified, KindEmailNotVerified},
	{ErrResetDisabled, KindResetDisabled},
	{ErrInvalidOrExpiredCode, KindInvalidOrExpiredCode},
	{ErrInvalidSelectorTokenPair, KindInvalidSelectorTokenPair},
	{ErrTokenExpired, KindTokenExpired},
	{ErrNoPriorConfirmationRequest, KindNoPriorConfirmationRequest},
	{ErrTooManyRequests, KindTooManyRequests},
	{ErrNotLoggedIn, KindNotLoggedIn},
	{ErrDecode, KindDecodeError},
	{ErrStorage, KindStorageError},
	{ErrUpstream, KindUpstreamError},
}

// KindOf returns the kind of err. Errors outside the taxonomy, including
// ErrEngineNotReady, report KindUpstreamError; nil reports "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUpstreamError
}

// sentinelOf returns the bare taxonomy error matching err, or nil.
func sentinelOf(err error) error {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// providerError maps an identity provider error to its public form.
// Kinds owned by this package (decode, storage) and anything unknown
// become ErrUpstream.
func providerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstream
	}
	s := sentinelOf(err)
	if s == nil || s == ErrDecode || s == ErrStorage {
		return ErrUpstream
	}
	return s
}
