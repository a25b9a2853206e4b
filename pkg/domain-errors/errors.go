// Package domainerrors carries coded errors across service boundaries.
//
// Services translate store and infrastructure failures into a Code so that
// transports can map them to status codes and stable messages without
// inspecting error strings. Expected failure kinds (quota exhausted, member not
// found, ...) are ordinary values. Programming faults go through Fault, which
// panics and is turned into a 500 by the recovery middleware.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers.
type Code string

const (
	CodeForbidden            Code = "forbidden"
	CodeInvalidInput         Code = "invalid_input"
	CodeMemberNotFound       Code = "member_not_found"
	CodeNotFound             Code = "not_found"
	CodeSubscriptionInactive Code = "subscription_inactive"
	CodeQuotaExhausted       Code = "quota_exhausted"
	CodeBusy                 Code = "busy"
	CodeReaderError          Code = "reader_error"
	CodeConflict             Code = "conflict"
	CodeUnauthorized         Code = "unauthorized"
	CodeRateLimited          Code = "rate_limited"
	CodeInternal             Code = "internal"
	CodeInvariantViolation   Code = "invariant_violation"
)

// messages are the user-visible texts for each code. Every code has its own
// message; callers must not collapse two codes into one text.
var messages = map[Code]string{
	CodeForbidden:            "operation not permitted for this operator",
	CodeInvalidInput:         "request is malformed",
	CodeMemberNotFound:       "no such member",
	CodeNotFound:             "resource not found",
	CodeSubscriptionInactive: "member subscription is inactive",
	CodeQuotaExhausted:       "member treatment quota is exhausted",
	CodeBusy:                 "member record is busy, retry shortly",
	CodeReaderError:          "credential could not be read, please retry",
	CodeConflict:             "resource conflict",
	CodeUnauthorized:         "authentication required",
	CodeRateLimited:          "too many attempts, retry later",
	CodeInternal:             "internal error",
	CodeInvariantViolation:   "internal invariant violated",
}

// Message returns the stable user-facing message for a code.
func Message(code Code) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[CodeInternal]
}

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Fault aborts the current operation for a programming invariant violation.
// It never returns.
func Fault(format string, args ...any) {
	panic(&Error{Code: CodeInvariantViolation, Message: fmt.Sprintf(format, args...)})
}

// AsFault extracts the fault raised by Fault from a recovered panic value.
func AsFault(recovered any) (*Error, bool) {
	de, ok := recovered.(*Error)
	if !ok || de.Code != CodeInvariantViolation {
		return nil, false
	}
	return de, true
}
