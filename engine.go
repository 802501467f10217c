package goRecover

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goRecover/capability"
	"github.com/MrEthical07/goRecover/internal"
	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	"github.com/MrEthical07/goRecover/internal/mailqueue"
	"github.com/MrEthical07/goRecover/internal/rate"
	"github.com/MrEthical07/goRecover/internal/stores"
	"go.uber.org/zap"
)

// Engine runs the signup, confirmation, login and password-recovery flows.
//
// Engine methods are safe for concurrent use once built. The only shared
// mutable state lives in the code store and the throttle backend, both
// of which provide atomic operations.
type Engine struct {
	config   Config
	throttle *rate.Throttle
	codes    stores.CodeStore
	codec    *capability.Codec
	provider IdentityProvider
	mail     *mailqueue.Queue
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Close drains the mail queue and the audit dispatcher. Flows called after
// Close still run but their mail is dropped.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mail != nil {
		e.mail.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events dropped because the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped reports verification mails dropped because the queue was full or closed.
func (e *Engine) MailDropped() uint64 {
	if e == nil || e.mail == nil {
		return 0
	}
	return e.mail.Dropped()
}

// MailFailed reports verification mails the sender rejected.
func (e *Engine) MailFailed() uint64 {
	if e == nil || e.mail == nil {
		return 0
	}
	return e.mail.Failed()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot never blocks and returns empty maps when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.codes == nil || e.throttle == nil || e.codec == nil || e.provider == nil {
		return ErrEngineNotReady
	}
	return nil
}

// SweepExpired deletes every verification code past its expiry and
// returns how many were removed. Flows sweep on their own before each
// lookup; this entry point serves background jobs.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	n, err := e.codes.SweepExpired(sctx)
	if err != nil {
		return 0, e.storageFault(ctx, flowSweep, "sweep", err)
	}
	if e.metrics != nil {
		e.metrics.Add(MetricCodeSwept, uint64(n))
	}
	return n, nil
}

func (e *Engine) log() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

func (e *Engine) clockNow() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}

/*
====================================
SHARED FLOW STEPS
====================================
*/

// checkThrottle spends one unit of the code-verification budget of the
// caller's IP.
func (e *Engine) checkThrottle(ctx context.Context, f flow) error {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	err := e.throttle.Check(sctx,
		e.config.Throttle.Action,
		clientIPFromContext(ctx),
		e.config.Throttle.Limit,
		e.config.Throttle.Window,
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricThrottleRejected)
		return ErrTooManyRequests
	default:
		return e.storageFault(ctx, f, "throttle", err)
	}
}

// lookupCode runs sweep → find scoped to email. A code issued only for
// another address reports ErrInvalidOrExpiredCode, exactly like an unknown code.
func (e *Engine) lookupCode(ctx context.Context, f flow, email, code string) (stores.VerificationCode, error) {
	if code == "" || email == "" {
		return stores.VerificationCode{}, ErrInvalidOrExpiredCode
	}

	if err := e.sweep(ctx, f); err != nil {
		return stores.VerificationCode{}, err
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	row, err := e.codes.FindByCodeAndEmail(sctx, code, email)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, stores.ErrCodeNotFound) {
		return stores.VerificationCode{}, e.storageFault(ctx, f, "find", err)
	}

	// Only counted; the caller sees the same error as for an unknown code.
	if _, ferr := e.codes.FindByCode(sctx, code); ferr == nil {
		e.metricInc(MetricCodeMismatch)
	}
	return stores.VerificationCode{}, ErrInvalidOrExpiredCode
}

func (e *Engine) sweep(ctx context.Context, f flow) error {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	n, err := e.codes.SweepExpired(sctx)
	if err != nil {
		return e.storageFault(ctx, f, "sweep", err)
	}
	if e.metrics != nil {
		e.metrics.Add(MetricCodeSwept, uint64(n))
	}
	return nil
}

// issueCode stores a fresh code bound to pair and queues its mail. The
// mail is enqueued only after the row is stored.
func (e *Engine) issueCode(ctx context.Context, f flow, email string, pair SelectorToken) error {
	code, err := internal.NewOTP(e.config.Code.Digits)
	if err != nil {
		return e.internalFault(ctx, f, "code generation failed", err)
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.codes.Put(sctx, email, code, pair.Selector, pair.Token); err != nil {
		return e.storageFault(ctx, f, "put", err)
	}
	e.metricInc(MetricCodeIssued)

	e.sendCode(ctx, email, code)
	return nil
}

func (e *Engine) sendCode(ctx context.Context, email, code string) {
	if e.mail == nil {
		return
	}
	body := strings.NewReplacer(
		"{code}", code,
		"{minutes}", strconv.Itoa(int(e.config.Code.TTL.Round(time.Minute)/time.Minute)),
	).Replace(e.config.Mail.BodyTemplate)

	msg := mailqueue.Message{To: email, Subject: e.config.Mail.Subject, Body: body}
	if !e.mail.Enqueue(ctx, msg) {
		e.log().Warn("verification mail dropped", zap.String("ip", clientIPFromContext(ctx)))
	}
}

// callProvider runs fn under the provider timeout and maps its error.
func (e *Engine) callProvider(ctx context.Context, f flow, op string, fn func(context.Context) error) error {
	pctx := ctx
	if e.config.Timeouts.Provider > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, e.config.Timeouts.Provider)
		defer cancel()
	}

	err := fn(pctx)
	if err == nil {
		return nil
	}
	mapped := providerError(err)
	if mapped == ErrUpstream {
		e.metricInc(MetricUpstreamError)
		e.log().Error("identity provider fault",
			zap.String("flow", string(f)),
			zap.String("op", op),
			zap.String("ip", clientIPFromContext(ctx)),
			zap.Error(err),
		)
	}
	return mapped
}

func (e *Engine) storageFault(ctx context.Context, f flow, op string, err error) error {
	e.metricInc(MetricStorageError)
	e.log().Error("storage fault",
		zap.String("flow", string(f)),
		zap.String("op", op),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.Error(err),
	)
	return ErrStorage
}

// internalFault logs a local failure that is not the caller's doing and
// hides it behind ErrUpstream.
func (e *Engine) internalFault(ctx context.Context, f flow, msg string, err error) error {
	e.log().Error(msg,
		zap.String("flow", string(f)),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.Error(err),
	)
	return ErrUpstream
}

// normalizeEmail is applied to every address entering a flow so stored
// and presented addresses compare byte for byte.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeouts.Store > 0 {
		return context.WithTimeout(ctx, e.config.Timeouts.Store)
	}
	return ctx, func() {}
}
