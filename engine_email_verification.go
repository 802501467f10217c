package goRecover

import (
	"context"
)

// VerifyEmail confirms the address email with the code mailed to it.
//
// Steps run in a fixed order: throttle (by client IP), sweep expired
// codes, find the code, cross-check its address, consume it, then ask the
// identity provider to confirm the bound selector/token pair. Consumption
// happens before delegation and is an atomic conditional delete, so of two
// requests racing on one code exactly one reaches the provider; the other
// gets ErrInvalidOrExpiredCode. A provider failure after consumption
// leaves the code spent; the user requests a new one with ResendCode.
//
// Errors: ErrTooManyRequests, ErrInvalidOrExpiredCode,
// ErrInvalidSelectorTokenPair, ErrTokenExpired, ErrUserAlreadyExists,
// ErrStorage, ErrUpstream.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) (err error) {
	email = normalizeEmail(email)
	defer e.finish(ctx, flowVerifyEmail, email, e.clockNow(), &err)
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.checkThrottle(ctx, flowVerifyEmail); err != nil {
		return err
	}

	row, err := e.lookupCode(ctx, flowVerifyEmail, email, code)
	if err != nil {
		return err
	}

	sctx, cancel := e.storeContext(ctx)
	consumed, derr := e.codes.DeleteByCodeAndEmail(sctx, row.Code, row.Email)
	cancel()
	if derr != nil {
		return e.storageFault(ctx, flowVerifyEmail, "consume", derr)
	}
	if consumed == 0 {
		return ErrInvalidOrExpiredCode
	}
	e.metricInc(MetricCodeConsumed)

	return e.callProvider(ctx, flowVerifyEmail, "confirm_email", func(pctx context.Context) error {
		return e.provider.ConfirmEmail(pctx, row.Selector, row.Token)
	})
}
