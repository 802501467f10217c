package goRecover

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	"go.uber.org/zap"
)

type flow string

const (
	flowSignup          flow = "signup"
	flowResendCode      flow = "resend_code"
	flowVerifyEmail     flow = "verify_email"
	flowInitiateReset   flow = "initiate_reset"
	flowVerifyResetCode flow = "verify_reset_code"
	flowCompleteReset   flow = "complete_reset"
	flowLogin           flow = "login"
	flowLogout          flow = "logout"
	flowSweep           flow = "sweep"
)

var flowCounters = map[flow][2]MetricID{
	flowSignup:          {MetricSignupSuccess, MetricSignupFailure},
	flowResendCode:      {MetricResendCodeSuccess, MetricResendCodeFailure},
	flowVerifyEmail:     {MetricVerifyEmailSuccess, MetricVerifyEmailFailure},
	flowInitiateReset:   {MetricInitiateResetSuccess, MetricInitiateResetFailure},
	flowVerifyResetCode: {MetricVerifyResetCodeSuccess, MetricVerifyResetCodeFailure},
	flowCompleteReset:   {MetricCompleteResetSuccess, MetricCompleteResetFailure},
	flowLogin:           {MetricLoginSuccess, MetricLoginFailure},
	flowLogout:          {MetricLogoutSuccess, MetricLogoutFailure},
}

// finish records the outcome of one flow call: counters, latency, an
// audit event and a debug log line. It runs deferred with the flow's
// named error result.
func (e *Engine) finish(ctx context.Context, f flow, subject string, start time.Time, errp *error) {
	if e == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	elapsed := e.clockNow().Sub(start)

	if ids, ok := flowCounters[f]; ok {
		if err == nil {
			e.metricInc(ids[0])
		} else {
			e.metricInc(ids[1])
		}
	}
	if e.metrics != nil {
		e.metrics.Observe(MetricFlowLatency, elapsed)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.log().Debug("flow finished",
		zap.String("flow", string(f)),
		zap.String("outcome", outcome),
		zap.String("kind", string(KindOf(err))),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.Duration("elapsed", elapsed),
	)

	if e.audit == nil {
		return
	}
	event := internalaudit.Event{
		Timestamp: e.clockNow().UTC(),
		EventType: string(f) + "_" + outcome,
		Flow:      string(f),
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		Success:   err == nil,
		Duration:  elapsed,
	}
	if err != nil {
		event.Error = string(KindOf(err))
	}
	e.audit.Emit(ctx, event)
}
