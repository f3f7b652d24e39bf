package runner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ErrorKind separates failures worth retrying from those that are not.
type ErrorKind int

const (
	// Permanent failures are never retried.
	Permanent ErrorKind = iota
	// Transient failures are retried while retries remain.
	Transient
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// Error codes recorded on failed jobs.
const (
	CodeTimeout     = "timeout"
	CodeUnavailable = "unavailable"
	CodeRateLimited = "rate_limited"
	CodeBadRequest  = "bad_request"
	CodeRejected    = "rejected"
	CodeInternal    = "internal"
	CodePanic       = "panic"
	CodeUnknown     = "unknown"
)

// ServiceError is a failure reported by the generation service.
type ServiceError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	StatusCode int // HTTP status, when there is one
	Cause      error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation service %s error %s (HTTP %d): %s", e.Kind, e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("generation service %s error %s: %s", e.Kind, e.Code, msg)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error is transient.
func (e *ServiceError) IsRetryable() bool {
	return e.Kind == Transient
}

// NewTransient returns a retryable ServiceError.
func NewTransient(code, message string, cause error) *ServiceError {
	return &ServiceError{Kind: Transient, Code: code, Message: message, Cause: cause}
}

// NewPermanent returns a non-retryable ServiceError.
func NewPermanent(code, message string, cause error) *ServiceError {
	return &ServiceError{Kind: Permanent, Code: code, Message: message, Cause: cause}
}

// FromStatus builds a ServiceError from an HTTP status code. 408, 429 and
// 5xx are transient; everything else is permanent.
func FromStatus(status int, message string) *ServiceError {
	e := &ServiceError{StatusCode: status, Message: message}
	switch {
	case status == http.StatusRequestTimeout:
		e.Kind, e.Code = Transient, CodeTimeout
	case status == http.StatusTooManyRequests:
		e.Kind, e.Code = Transient, CodeRateLimited
	case status >= 500:
		e.Kind, e.Code = Transient, CodeUnavailable
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind, e.Code = Permanent, CodeBadRequest
	default:
		e.Kind, e.Code = Permanent, CodeRejected
	}
	return e
}

// retryable is satisfied by backend error types that know whether they
// are worth retrying.
type retryable interface {
	IsRetryable() bool
}

type coded interface {
	ErrorCode() string
}

// Classify decides whether err is transient or permanent and picks the
// code stored on the job.
func Classify(err error) (ErrorKind, string) {
	if err == nil {
		return Permanent, ""
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind, se.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient, CodeTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient, CodeTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Transient, CodeUnavailable
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return Transient, CodeUnavailable
	}

	var r retryable
	if errors.As(err, &r) {
		kind, code := Permanent, CodeRejected
		if r.IsRetryable() {
			kind, code = Transient, CodeUnavailable
		}
		var c coded
		if errors.As(err, &c) && c.ErrorCode() != "" {
			code = c.ErrorCode()
		}
		return kind, code
	}
	return Permanent, CodeUnknown
}
