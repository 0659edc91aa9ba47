package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of raid failure. Codes are stable and surfaced to clients.
type Code string

const (
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeProfileNotClaimed      Code = "PROFILE_NOT_CLAIMED"
	CodeTargetNotFound         Code = "TARGET_NOT_FOUND"
	CodeSelfTargetForbidden    Code = "SELF_TARGET_FORBIDDEN"
	CodeDailyLimitExceeded     Code = "DAILY_LIMIT_EXCEEDED"
	CodeWeeklyCooldownActive   Code = "WEEKLY_COOLDOWN_ACTIVE"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeValidationError        Code = "VALIDATION_ERROR"
	CodeStorageFailure         Code = "STORAGE_FAILURE"
)

// HTTPStatus returns the status code a code maps to.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodeProfileNotClaimed:
		return http.StatusForbidden
	case CodeTargetNotFound:
		return http.StatusNotFound
	case CodeSelfTargetForbidden:
		return http.StatusConflict
	case CodeDailyLimitExceeded, CodeWeeklyCooldownActive, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may manually retry the same request.
// Nothing is retried automatically.
func (c Code) Retryable() bool {
	return c == CodeStorageFailure
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a raid failure with a stable code, a user-facing message and
// optional metadata such as current counts.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	Meta    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so errors.Is(err, ErrDailyLimit) works
// regardless of message or metadata.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrAuthenticationRequired = &Error{Code: CodeAuthenticationRequired, Message: "sign in to raid"}
	ErrProfileNotClaimed      = &Error{Code: CodeProfileNotClaimed, Message: "claim your building before raiding"}
	ErrTargetNotFound         = &Error{Code: CodeTargetNotFound, Message: "target building not found"}
	ErrSelfTargetForbidden    = &Error{Code: CodeSelfTargetForbidden, Message: "you cannot raid your own building"}
	ErrDailyLimitExceeded     = &Error{Code: CodeDailyLimitExceeded, Message: "daily raid limit reached"}
	ErrWeeklyCooldownActive   = &Error{Code: CodeWeeklyCooldownActive, Message: "you already raided this building this week"}
	ErrRateLimited            = &Error{Code: CodeRateLimited, Message: "too many raid requests, slow down"}
	ErrValidation             = &Error{Code: CodeValidationError, Message: "invalid request"}
	ErrStorageFailure         = &Error{Code: CodeStorageFailure, Message: "something went wrong, please try again"}
)

// withMeta copies a sentinel and attaches metadata.
func withMeta(base *Error, meta map[string]any) *Error {
	e := *base
	e.Meta = meta
	return &e
}

// storageError wraps an unexpected persistence failure.
func storageError(op string, err error) *Error {
	e := *ErrStorageFailure
	e.Cause = fmt.Errorf("%s: %w", op, err)
	return &e
}

// ValidationError builds a VALIDATION_ERROR for the given fields.
func ValidationError(fields ...FieldError) *Error {
	e := *ErrValidation
	e.Fields = fields
	if len(fields) == 1 {
		e.Message = fields[0].Field + ": " + fields[0].Message
	}
	return &e
}

// CodeOf returns the code of err, or CodeStorageFailure for uncoded errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageFailure
}
