package kpi

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures. The orchestrator's escalation
// rules key off the kind, not the concrete error.
type ErrorKind string

const (
	// KindRateLimited means the platform throttled us. Retryable with backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindCaptchaDetected means bot detection is confirmed. Further attempts
	// on the same tier are futile; escalate instead.
	KindCaptchaDetected ErrorKind = "captcha_detected"
	// KindAuthRequired means the tier needs credentials it does not have.
	KindAuthRequired ErrorKind = "auth_required"
	// KindParseError means the response shape changed. Deterministic, not retried.
	KindParseError ErrorKind = "parse_error"
	// KindNetworkError covers transient transport failures.
	KindNetworkError ErrorKind = "network_error"
	// KindTimeout is the task- or attempt-level deadline firing.
	KindTimeout ErrorKind = "timeout"
	// KindUnavailable means the tier does not apply to this platform at all.
	// Skipped without counting against any retry budget.
	KindUnavailable ErrorKind = "unavailable"
)

// Retryable reports whether another attempt on the same tier can
// plausibly succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindNetworkError
}

// ExtractionError is the error type every tier engine fails with.
type ExtractionError struct {
	Kind     ErrorKind
	Platform Platform
	cause    error
}

func NewError(kind ErrorKind, platform Platform, cause error) *ExtractionError {
	return &ExtractionError{Kind: kind, Platform: platform, cause: cause}
}

func Errorf(kind ErrorKind, platform Platform, format string, args ...any) *ExtractionError {
	return &ExtractionError{Kind: kind, Platform: platform, cause: fmt.Errorf(format, args...)}
}

func (e *ExtractionError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.cause)
}

func (e *ExtractionError) Unwrap() error { return e.cause }

// KindOf extracts the ErrorKind from err. Deadline and cancellation
// errors map to Timeout; everything unclassified is a network error,
// the conservative retryable default.
func KindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindNetworkError
}
