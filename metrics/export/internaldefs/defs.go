package internaldefs

import (
	goRecover "github.com/MrEthical07/goRecover"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goRecover.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goRecover.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goRecover.MetricSignupSuccess, Name: "gorecover_signup_success_total", Help: "Signups that issued a verification code."},
	{ID: goRecover.MetricSignupFailure, Name: "gorecover_signup_failure_total", Help: "Failed signups."},
	{ID: goRecover.MetricResendCodeSuccess, Name: "gorecover_resend_code_success_total", Help: "Reissued confirmation codes."},
	{ID: goRecover.MetricResendCodeFailure, Name: "gorecover_resend_code_failure_total", Help: "Failed confirmation code resends."},
	{ID: goRecover.MetricVerifyEmailSuccess, Name: "gorecover_verify_email_success_total", Help: "Confirmed email addresses."},
	{ID: goRecover.MetricVerifyEmailFailure, Name: "gorecover_verify_email_failure_total", Help: "Failed email confirmations."},
	{ID: goRecover.MetricInitiateResetSuccess, Name: "gorecover_initiate_reset_success_total", Help: "Password reset codes issued."},
	{ID: goRecover.MetricInitiateResetFailure, Name: "gorecover_initiate_reset_failure_total", Help: "Failed password reset initiations."},
	{ID: goRecover.MetricVerifyResetCodeSuccess, Name: "gorecover_verify_reset_code_success_total", Help: "Capability tokens issued."},
	{ID: goRecover.MetricVerifyResetCodeFailure, Name: "gorecover_verify_reset_code_failure_total", Help: "Failed reset code verifications."},
	{ID: goRecover.MetricCompleteResetSuccess, Name: "gorecover_complete_reset_success_total", Help: "Completed password resets."},
	{ID: goRecover.MetricCompleteResetFailure, Name: "gorecover_complete_reset_failure_total", Help: "Failed password resets."},
	{ID: goRecover.MetricLoginSuccess, Name: "gorecover_login_success_total", Help: "Successful logins."},
	{ID: goRecover.MetricLoginFailure, Name: "gorecover_login_failure_total", Help: "Failed logins."},
	{ID: goRecover.MetricLogoutSuccess, Name: "gorecover_logout_success_total", Help: "Logouts."},
	{ID: goRecover.MetricLogoutFailure, Name: "gorecover_logout_failure_total", Help: "Failed logouts."},
	{ID: goRecover.MetricThrottleRejected, Name: "gorecover_throttle_rejected_total", Help: "Code verifications rejected by the throttle."},
	{ID: goRecover.MetricCodeIssued, Name: "gorecover_code_issued_total", Help: "Verification codes stored."},
	{ID: goRecover.MetricCodeConsumed, Name: "gorecover_code_consumed_total", Help: "Verification codes consumed."},
	{ID: goRecover.MetricCodeSwept, Name: "gorecover_code_swept_total", Help: "Expired verification codes removed."},
	{ID: goRecover.MetricCodeMismatch, Name: "gorecover_code_mismatch_total", Help: "Codes presented with a foreign email address."},
	{ID: goRecover.MetricDecodeFailure, Name: "gorecover_decode_failure_total", Help: "Capability tokens that failed to decode."},
	{ID: goRecover.MetricStorageError, Name: "gorecover_storage_error_total", Help: "Code store or throttle backend faults."},
	{ID: goRecover.MetricUpstreamError, Name: "gorecover_upstream_error_total", Help: "Identity provider faults."},
}

var HistogramDefs = []HistogramDef{
	{ID: goRecover.MetricFlowLatency, Name: "gorecover_flow_latency_seconds", Help: "Latency of recovery flows."},
}

// Gauge-like counters read from the engine's queues rather than the snapshot.
const (
	AuditDroppedName = "gorecover_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
	MailDroppedName  = "gorecover_mail_dropped_total"
	MailDroppedHelp  = "Verification mails dropped because the queue was full or closed."
	MailFailedName   = "gorecover_mail_failed_total"
	MailFailedHelp   = "Verification mails rejected by the sender."
)

// HistogramUpperBounds are the bucket bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals; the last
// entry is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
