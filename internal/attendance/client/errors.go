package client

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for calls to the
// attendance resource.
type ErrorCategory string

const (
	// ErrorTimeout indicates the call did not finish within the client timeout.
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorOutage indicates the resource could not be reached or failed with 5xx.
	ErrorOutage ErrorCategory = "outage"

	// ErrorRejected indicates the resource answered with success=false.
	ErrorRejected ErrorCategory = "rejected"

	// ErrorBadData indicates the response body could not be decoded or carried
	// no record where one was expected.
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorInternal indicates the request could not be built.
	ErrorInternal ErrorCategory = "internal"
)

// RemoteError wraps a failed call with its category and, for rejections, the
// resource's error code.
type RemoteError struct {
	Category   ErrorCategory
	Operation  string
	StatusCode int
	Code       string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *RemoteError) Error() string {
	var detail string
	if e.Code != "" {
		detail = fmt.Sprintf(" (%s)", e.Code)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("attendance %s [%s]%s: %s: %v", e.Operation, e.Category, detail, e.Message, e.Underlying)
	}
	return fmt.Sprintf("attendance %s [%s]%s: %s", e.Operation, e.Category, detail, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Underlying
}

func newRemoteError(category ErrorCategory, operation, message string, underlying error) *RemoteError {
	return &RemoteError{
		Category:   category,
		Operation:  operation,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == ErrorTimeout || category == ErrorOutage,
	}
}

// IsRetryable reports whether err is a transient remote failure.
func IsRetryable(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// CategoryOf extracts the category from err.
func CategoryOf(err error) ErrorCategory {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Category
	}
	return ErrorInternal
}
