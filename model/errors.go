package model

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CODE_NOT_FOUND         ErrorCode = "NotFound"
	CODE_INVALID_STATE     ErrorCode = "InvalidState"
	CODE_VALIDATION        ErrorCode = "ValidationError"
	CODE_TRANSIENT_FAILURE ErrorCode = "TransientFailure"
	CODE_INTERNAL          ErrorCode = "InternalError"
	CODE_CONFLICT          ErrorCode = "Conflict"
)

// DomainError is the typed failure every public operation returns instead of
// leaking raw errors to callers.
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func NewNotFoundError(entity string, id string) *DomainError {
	return &DomainError{Code: CODE_NOT_FOUND, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func NewInvalidStateError(message string) *DomainError {
	return &DomainError{Code: CODE_INVALID_STATE, Message: message}
}

func NewValidationError(message string) *DomainError {
	return &DomainError{Code: CODE_VALIDATION, Message: message}
}

func NewTransientError(message string, cause error) *DomainError {
	return &DomainError{Code: CODE_TRANSIENT_FAILURE, Message: message, Cause: cause}
}

func NewInternalError(message string, cause error) *DomainError {
	return &DomainError{Code: CODE_INTERNAL, Message: message, Cause: cause}
}

func NewConflictError(message string) *DomainError {
	return &DomainError{Code: CODE_CONFLICT, Message: message}
}

// CodeOf extracts the error code, defaulting unknown errors to InternalError.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CODE_INTERNAL
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
