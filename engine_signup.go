package goRecover

import (
	"context"

	"go.uber.org/zap"
)

// Signup registers a pending account through the identity provider, then
// stores a verification code bound to the returned confirmation pair and
// queues its mail. The call returns as soon as the code is stored; mail
// delivery happens afterwards and its outcome is never reported here.
//
// Errors: ErrInvalidEmail, ErrInvalidPassword, ErrUserAlreadyExists,
// ErrTooManyRequests (provider throttle), ErrStorage, ErrUpstream.
func (e *Engine) Signup(ctx context.Context, email, password, username string) (err error) {
	email = normalizeEmail(email)
	defer e.finish(ctx, flowSignup, email, e.clockNow(), &err)
	if err := e.ready(); err != nil {
		return err
	}

	var pair SelectorToken
	err = e.callProvider(ctx, flowSignup, "register_pending_user", func(pctx context.Context) error {
		var perr error
		pair, perr = e.provider.RegisterPendingUser(pctx, email, password, username)
		return perr
	})
	if err != nil {
		return err
	}

	return e.issueCode(ctx, flowSignup, email, pair)
}

// ResendCode replaces every pending code of email with a fresh one.
//
// The provider is asked to reissue the confirmation first. Only once it
// agrees are the old codes deleted and the new one stored, so a rejected
// resend leaves the previous code usable.
//
// Errors: ErrNoPriorConfirmationRequest, ErrTooManyRequests,
// ErrUserAlreadyExists (already confirmed), ErrStorage, ErrUpstream.
func (e *Engine) ResendCode(ctx context.Context, email string) (err error) {
	email = normalizeEmail(email)
	defer e.finish(ctx, flowResendCode, email, e.clockNow(), &err)
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.sweep(ctx, flowResendCode); err != nil {
		return err
	}

	var pair SelectorToken
	err = e.callProvider(ctx, flowResendCode, "resend_confirmation", func(pctx context.Context) error {
		var perr error
		pair, perr = e.provider.ResendConfirmation(pctx, email)
		return perr
	})
	if err != nil {
		return err
	}

	sctx, cancel := e.storeContext(ctx)
	removed, derr := e.codes.DeleteByEmail(sctx, email)
	cancel()
	if derr != nil {
		return e.storageFault(ctx, flowResendCode, "delete_by_email", derr)
	}
	if removed > 0 {
		e.log().Debug("pending codes invalidated", zap.Int64("count", removed))
	}

	return e.issueCode(ctx, flowResendCode, email, pair)
}
