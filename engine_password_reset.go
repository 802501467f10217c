package goRecover

import (
	"context"
)

// InitiateReset asks the identity provider for a reset pair for email and,
// when the account is eligible, stores a code bound to it and queues the
// mail. Repeated calls are bounded by the provider's own throttle.
//
// Errors: ErrInvalidEmail, ErrUnknownUser, ErrEmailNotVerified,
// ErrResetDisabled, ErrTooManyRequests, ErrStorage, ErrUpstream.
func (e *Engine) InitiateReset(ctx context.Context, email string) (err error) {
	email = normalizeEmail(email)
	defer e.finish(ctx, flowInitiateReset, email, e.clockNow(), &err)
	if err := e.ready(); err != nil {
		return err
	}

	var pair SelectorToken
	err = e.callProvider(ctx, flowInitiateReset, "forgot_password", func(pctx context.Context) error {
		var perr error
		pair, perr = e.provider.ForgotPassword(pctx, email)
		return perr
	})
	if err != nil {
		return err
	}

	return e.issueCode(ctx, flowInitiateReset, email, pair)
}

// VerifyCodeForReset checks a reset code and returns the opaque capability
// token that CompleteReset accepts.
//
// The code row is left in place: from here on the token carries the
// continuation state, and the provider's rules on the underlying pair
// decide whether it can still be used.
//
// Errors: ErrTooManyRequests, ErrInvalidOrExpiredCode,
// ErrInvalidSelectorTokenPair, ErrTokenExpired, ErrResetDisabled,
// ErrStorage, ErrUpstream.
func (e *Engine) VerifyCodeForReset(ctx context.Context, email, code string) (payload string, err error) {
	email = normalizeEmail(email)
	defer e.finish(ctx, flowVerifyResetCode, email, e.clockNow(), &err)
	if err := e.ready(); err != nil {
		return "", err
	}

	if err := e.checkThrottle(ctx, flowVerifyResetCode); err != nil {
		return "", err
	}

	row, err := e.lookupCode(ctx, flowVerifyResetCode, email, code)
	if err != nil {
		return "", err
	}

	err = e.callProvider(ctx, flowVerifyResetCode, "can_reset_password", func(pctx context.Context) error {
		return e.provider.CanResetPassword(pctx, row.Selector, row.Token)
	})
	if err != nil {
		return "", err
	}

	payload, err = e.codec.Encode(row.Selector, row.Token)
	if err != nil {
		return "", e.internalFault(ctx, flowVerifyResetCode, "capability encode failed", err)
	}
	return payload, nil
}

// CompleteReset opens the capability token and asks the identity provider
// to set newPassword on the recovered pair. A token that fails to open is
// rejected with ErrDecode, whatever the cause.
//
// Errors: ErrDecode, ErrInvalidSelectorTokenPair, ErrTokenExpired,
// ErrResetDisabled, ErrInvalidPassword, ErrTooManyRequests, ErrUpstream.
func (e *Engine) CompleteReset(ctx context.Context, payload, newPassword string) (err error) {
	defer e.finish(ctx, flowCompleteReset, "", e.clockNow(), &err)
	if err := e.ready(); err != nil {
		return err
	}

	p, derr := e.codec.Decode(payload)
	if derr != nil {
		e.metricInc(MetricDecodeFailure)
		return ErrDecode
	}

	return e.callProvider(ctx, flowCompleteReset, "reset_password", func(pctx context.Context) error {
		return e.provider.ResetPassword(pctx, p.Selector, p.Token, newPassword)
	})
}
