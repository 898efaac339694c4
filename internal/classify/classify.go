// Package classify maps raw backend failures onto a stable error
// taxonomy. All string sniffing of provider errors lives here so the
// matching rules are centralized and tested once, never duplicated in
// adapters.
package classify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind is the stable error category exposed to callers.
type Kind string

const (
	QuotaExceeded         Kind = "quota_exceeded"
	AccessDenied          Kind = "access_denied"
	Unavailable           Kind = "unavailable"
	UnsupportedCapability Kind = "unsupported_capability"
	ConstructionError     Kind = "construction_error"
	Unknown               Kind = "unknown"
)

// Error is a backend-agnostic error descriptor. Message is safe to show
// to users; Raw exists for diagnostics only.
type Error struct {
	Kind    Kind
	Message string
	Raw     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Raw }

// quota signals are matched before access-denied signals: some providers
// report quota exhaustion with overlapping auth-ish wording.
var (
	quotaSignals  = []string{"429", "quota", "too many requests", "rate limit"}
	deniedSignals = []string{"403", "forbidden", "unauthorized"}
)

// Classify inspects an error's message and transport state and returns a
// classified descriptor. It is pure: the same error yields the same kind
// every time, regardless of which adapter produced it.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	if containsAny(lower, quotaSignals) {
		return &Error{Kind: QuotaExceeded, Message: msg, Raw: err}
	}
	if containsAny(lower, deniedSignals) {
		return &Error{Kind: AccessDenied, Message: msg, Raw: err}
	}

	// Transport failures never reached the backend at all. url.Error wraps
	// every net/http round-trip failure and carries the endpoint.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{
			Kind:    Unavailable,
			Message: fmt.Sprintf("backend unreachable at %s: %v", urlErr.URL, urlErr.Err),
			Raw:     err,
		}
	}
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		return &Error{Kind: Unavailable, Message: msg, Raw: err}
	}

	return &Error{Kind: Unknown, Message: msg, Raw: err}
}

// Constructionf builds a construction-time error, raised synchronously at
// initialize/switch and never deferred to the first request.
func Constructionf(raw error, format string, args ...any) *Error {
	return &Error{Kind: ConstructionError, Message: fmt.Sprintf(format, args...), Raw: raw}
}

// Unsupportedf builds an unsupported-capability error, raised locally
// without any network attempt.
func Unsupportedf(format string, args ...any) *Error {
	return &Error{Kind: UnsupportedCapability, Message: fmt.Sprintf(format, args...)}
}

func containsAny(s string, signals []string) bool {
	for _, sig := range signals {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
