package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a screenflow error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrReadOnly          ErrorCode = "READ_ONLY"          // 409
	ErrRequestInFlight   ErrorCode = "REQUEST_IN_FLIGHT"  // 409
	ErrMissingCredential ErrorCode = "MISSING_CREDENTIAL" // 412
	ErrEmptyImageSet     ErrorCode = "EMPTY_IMAGE_SET"    // 422
	ErrEmptyPrompt       ErrorCode = "EMPTY_PROMPT"       // 422
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrStorage           ErrorCode = "STORAGE"            // 500
	ErrTransport         ErrorCode = "TRANSPORT"          // 502
)

// Transport failure reasons carried in Details["reason"].
const (
	ReasonInvalidCredential = "invalid_credential"
	ReasonMalformedPayload  = "malformed_payload"
	ReasonUnavailable       = "unavailable"
)

// FlowError represents a structured error with code, status, and details.
type FlowError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *FlowError {
	return &FlowError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing submission, template or image.
func NewNotFound(kind, identifier string) *FlowError {
	return &FlowError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewReadOnly creates a 409 error for edits that the current state does not allow.
func NewReadOnly(msg string) *FlowError {
	return &FlowError{
		Code:    ErrReadOnly,
		Status:  409,
		Message: msg,
	}
}

// NewRequestInFlight creates a 409 error when a submission is already outstanding.
func NewRequestInFlight() *FlowError {
	return &FlowError{
		Code:    ErrRequestInFlight,
		Status:  409,
		Message: "an analysis request is already in flight",
	}
}

// NewMissingCredential creates a 412 error when no API credential is configured.
func NewMissingCredential() *FlowError {
	return &FlowError{
		Code:    ErrMissingCredential,
		Status:  412,
		Message: "no API credential configured",
	}
}

// NewEmptyImageSet creates a 422 error when a submission has no images.
func NewEmptyImageSet() *FlowError {
	return &FlowError{
		Code:    ErrEmptyImageSet,
		Status:  422,
		Message: "at least one image is required",
	}
}

// NewEmptyPrompt creates a 422 error when a submission has no prompt text.
func NewEmptyPrompt() *FlowError {
	return &FlowError{
		Code:    ErrEmptyPrompt,
		Status:  422,
		Message: "prompt text is required",
	}
}

// NewFileNotFound creates a 404 error for import/export paths.
func NewFileNotFound(path string) *FlowError {
	return &FlowError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewTransport creates a 502 error for a failed inference call.
// The upstream message is kept verbatim.
func NewTransport(reason, upstream string) *FlowError {
	return &FlowError{
		Code:    ErrTransport,
		Status:  502,
		Message: upstream,
		Details: map[string]any{"reason": reason},
	}
}

// NewStorage creates a 500 error for a failed persistence call.
func NewStorage(err error) *FlowError {
	msg := "storage error"
	if err != nil {
		msg = err.Error()
	}
	return &FlowError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *FlowError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &FlowError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a FlowError with the given code.
func Is(err error, code ErrorCode) bool {
	var fErr *FlowError
	if stderrors.As(err, &fErr) {
		return fErr.Code == code
	}
	return false
}

// IsPrecondition reports whether err is one of the submission precondition failures.
func IsPrecondition(err error) bool {
	return Is(err, ErrMissingCredential) || Is(err, ErrEmptyImageSet) || Is(err, ErrEmptyPrompt)
}

// Reason returns the transport failure reason, or "" if err is not a transport error.
func Reason(err error) string {
	var fErr *FlowError
	if stderrors.As(err, &fErr) && fErr.Code == ErrTransport {
		if r, ok := fErr.Details["reason"].(string); ok {
			return r
		}
	}
	return ""
}
