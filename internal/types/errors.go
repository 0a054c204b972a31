package types

import (
	"errors"
	"fmt"
)

// Kind is the surfaced error category. The workflow driver routes on Kind
// and Class, never on concrete error types.
type Kind string

const (
	// Input errors (fatal at ingest).
	KindFileMissing         Kind = "file_missing"
	KindExtensionDisallowed Kind = "extension_disallowed"
	KindPathOutsideRoots    Kind = "path_outside_allowed_roots"
	KindSizeExceeded        Kind = "size_exceeded"
	KindPageCountExceeded   Kind = "page_count_exceeded"
	KindEncrypted           Kind = "encrypted"
	KindPdfUnreadable       Kind = "pdf_unreadable"

	// Analysis errors (handled inside detection, never fatal).
	KindProviderUnavailable   Kind = "provider_unavailable"
	KindMalformedResponse     Kind = "malformed_response"
	KindHallucinationRejected Kind = "hallucination_rejected"

	// Transient errors (retried with backoff).
	KindRateLimited     Kind = "rate_limited"
	KindNetworkTimeout  Kind = "network_timeout"
	KindSinkServerError Kind = "sink_server_error"

	// Exhaustion errors (fatal after retries).
	KindProviderExhausted Kind = "provider_exhausted"
	KindSinkExhausted     Kind = "sink_exhausted"

	// Generation errors (fatal).
	KindPdfGenerationFailed Kind = "pdf_generation_failed"
	KindFilesystemError     Kind = "filesystem_error"

	// Validation errors (fatal).
	KindValidationFailed Kind = "validation_failed"

	// Configuration errors (fatal at startup only).
	KindInvalidConfig Kind = "invalid_config"
)

// Class determines how the workflow driver reacts to an error.
type Class int

const (
	// ClassFatal quarantines the document.
	ClassFatal Class = iota
	// ClassTransient re-enters the current stage until retries are exhausted.
	ClassTransient
	// ClassRecoverable downshifts to the next detection strategy.
	ClassRecoverable
)

func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassTransient:
		return "transient"
	case ClassRecoverable:
		return "recoverable"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Error is the tagged error carried between stages.
type Error struct {
	Kind  Kind
	Class Class
	Stage string // stage name at the point of failure, if known
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal wraps err as a fatal error of the given kind.
func Fatal(kind Kind, err error) *Error {
	return &Error{Kind: kind, Class: ClassFatal, Err: err}
}

// Fatalf builds a fatal error from a format string.
func Fatalf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Class: ClassFatal, Err: fmt.Errorf(format, args...)}
}

// Transient wraps err as a retryable error of the given kind.
func Transient(kind Kind, err error) *Error {
	return &Error{Kind: kind, Class: ClassTransient, Err: err}
}

// Recoverable wraps err as a strategy-level error of the given kind.
func Recoverable(kind Kind, err error) *Error {
	return &Error{Kind: kind, Class: ClassRecoverable, Err: err}
}

// ClassOf reports the class of err. Untagged errors are fatal.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassFatal
}

// KindOf reports the kind of err, or KindFilesystemError for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFilesystemError
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && ClassOf(err) == ClassTransient
}
