// Package walleterrors defines the error taxonomy shared across the
// wallet core. Every error returned from internal packages carries one
// of these kinds so the API layer can map it to the right status code
// without string-matching.
package walleterrors

import "errors"

// Kind classifies an error for status-code mapping and logging.
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindAuth       Kind = "AUTH_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindPolicy     Kind = "POLICY_ERROR"
	KindCrypto     Kind = "CRYPTO_ERROR"
	KindStorage    Kind = "STORAGE_ERROR"
	KindNetwork    Kind = "NETWORK_ERROR"
	KindConfig     Kind = "CONFIG_ERROR"
)

// Error wraps an underlying cause with a Kind. The cause is kept
// unexported from String()/Error() for Sensitive errors so a bare
// "%v" or log line never leaks cryptographic detail; callers that need
// the cause (a developer-flag-gated debug path) use errors.Unwrap.
type Error struct {
	Kind      Kind
	Message   string
	Sensitive bool
	cause     error
}

func (e *Error) Error() string {
	if e.Sensitive {
		return string(e.Kind) + ": " + e.Message
	}
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a plain error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Sensitive builds an error whose cause must never be surfaced to a
// client, per spec: CryptoError responses must not reveal the
// underlying cause unless a developer flag is set.
func Sensitive(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Sensitive: true, cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindStorage (the
// conservative "something failed server-side" classification) when
// err does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
