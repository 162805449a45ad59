package resolver

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a resolution failure.
type ErrorKind string

const (
	KindEmptyReference         ErrorKind = "EmptyReference"
	KindProbeFailed            ErrorKind = "ProbeFailed"
	KindFetchBlobFailed        ErrorKind = "FetchBlobFailed"
	KindOversizedPayload       ErrorKind = "OversizedPayload"
	KindUnsupportedContentType ErrorKind = "UnsupportedContentType"
	KindStorageAccessFailed    ErrorKind = "StorageAccessFailed"
	KindBucketCreateFailed     ErrorKind = "BucketCreateFailed"
	KindUploadFailed           ErrorKind = "UploadFailed"
	KindPublicURLUnavailable   ErrorKind = "PublicUrlUnavailable"
	KindTimeout                ErrorKind = "Timeout"
	KindCanceled               ErrorKind = "Canceled"
	KindUnknown                ErrorKind = "UnknownValidationError"
)

// ValidationError is the only error type Resolve returns. Msg is meant to be
// shown to the user as is; Err keeps the underlying cause.
type ValidationError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrNoReferenceProvided is returned for an empty reference.
var ErrNoReferenceProvided = &ValidationError{Kind: KindEmptyReference, Msg: "No model reference provided"}

// KindOf returns the kind of a resolution error, KindUnknown for foreign
// errors, and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindUnknown
}

func newError(kind ErrorKind, msg string, err error) *ValidationError {
	return &ValidationError{Kind: kind, Msg: msg, Err: err}
}

// wrap turns a step failure into a ValidationError of kind, unless the step
// ran out of time or was canceled.
func wrap(kind ErrorKind, msg string, err error) *ValidationError {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return ve
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, "timeout", err)
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, "canceled", err)
	default:
		return newError(kind, msg, err)
	}
}
