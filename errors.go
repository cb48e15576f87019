package pagekit

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so the HTTP layer can pick a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindMissingCredential
	KindAuthentication
	KindUnsupportedMedia
	KindPayloadTooLarge
	KindAccessDenied
	KindNotFound
	KindProcessing
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMissingCredential:
		return "missing credential"
	case KindAuthentication:
		return "authentication"
	case KindUnsupportedMedia:
		return "unsupported media"
	case KindPayloadTooLarge:
		return "payload too large"
	case KindAccessDenied:
		return "access denied"
	case KindNotFound:
		return "not found"
	case KindProcessing:
		return "processing"
	case KindStoreUnavailable:
		return "store unavailable"
	default:
		return "internal"
	}
}

// Error is the error type returned by every pagekit operation.
// Message is safe to show to API callers; Err carries the underlying cause.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, pagekit.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Kind sentinels for errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrMissingCredential = &Error{Kind: KindMissingCredential}
	ErrAuthentication    = &Error{Kind: KindAuthentication}
	ErrUnsupportedMedia  = &Error{Kind: KindUnsupportedMedia}
	ErrPayloadTooLarge   = &Error{Kind: KindPayloadTooLarge}
	ErrAccessDenied      = &Error{Kind: KindAccessDenied}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrProcessing        = &Error{Kind: KindProcessing}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
)

func newError(kind Kind, status int, msg string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: msg, Err: err}
}

func validationError(msg string) *Error {
	return newError(KindValidation, http.StatusBadRequest, msg, nil)
}

func missingCredentialError() *Error {
	return newError(KindMissingCredential, http.StatusUnauthorized, "token required", nil)
}

// badCredentialsError is the login failure (401).
func badCredentialsError() *Error {
	return newError(KindAuthentication, http.StatusUnauthorized, "invalid username or password", nil)
}

// invalidTokenError is the verification failure (403).
func invalidTokenError(err error) *Error {
	return newError(KindAuthentication, http.StatusForbidden, "invalid or expired token", err)
}

func unsupportedMediaError(mime string) *Error {
	return newError(KindUnsupportedMedia, http.StatusBadRequest, fmt.Sprintf("file type %q not allowed", mime), nil)
}

func payloadTooLargeError(limit int64) *Error {
	return newError(KindPayloadTooLarge, http.StatusBadRequest, fmt.Sprintf("file too large (max %d bytes)", limit), nil)
}

func accessDeniedError() *Error {
	return newError(KindAccessDenied, http.StatusBadRequest, "access denied", nil)
}

func notFoundError(msg string) *Error {
	return newError(KindNotFound, http.StatusNotFound, msg, nil)
}

func processingError(err error) *Error {
	return newError(KindProcessing, http.StatusInternalServerError, "failed to compress image", err)
}

func storeUnavailableError(err error) *Error {
	return newError(KindStoreUnavailable, http.StatusInternalServerError, "page data store unavailable", err)
}

// internalError wraps an unexpected failure with a caller-facing message.
func internalError(msg string, err error) *Error {
	return newError(KindInternal, http.StatusInternalServerError, msg, err)
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
