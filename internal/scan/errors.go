package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a manual or decoded code is blank.
	ErrEmptyInput = errors.New("enter a valid code")
	// ErrPermissionDenied is returned when the camera cannot be acquired
	// because access was refused.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrCameraUnavailable is returned when no camera is configured or the
	// device is missing.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrUnknownMode is returned for mode names and values outside the
	// declared set.
	ErrUnknownMode = errors.New("unknown scan mode")
	// ErrClosed is returned by operations on a closed classifier.
	ErrClosed = errors.New("classifier closed")
)

// AuditLogError wraps a failed audit delivery. It is logged to the diagnostic
// sink only and never reaches the scanning workflow.
type AuditLogError struct {
	Code string
	Sink string
	Err  error
}

func (e *AuditLogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("audit %s for %q: %v", e.Sink, e.Code, e.Err)
}

func (e *AuditLogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
