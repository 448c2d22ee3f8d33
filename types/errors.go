package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies protocol errors by how a caller should react.
type ErrorKind string

const (
	// KindTransport covers HTTP or network failures reaching the RPC
	// endpoint. Always safe to retry with backoff; implies nothing about
	// server-side state.
	KindTransport ErrorKind = "transport"

	// KindProtocol covers well-formed RPC responses carrying a business
	// error, or responses whose shape does not match the method's schema.
	// Never retried automatically.
	KindProtocol ErrorKind = "protocol"

	// KindValidation covers malformed caller input rejected before any
	// state mutation.
	KindValidation ErrorKind = "validation"

	// KindStateConflict covers requests that are well-formed but invalid
	// against the intent's current state. The caller must change the
	// request, not retry it unchanged.
	KindStateConflict ErrorKind = "state_conflict"

	// KindNotFound covers missing intents and the "transaction not indexed
	// yet" case, which is recoverable by polling.
	KindNotFound ErrorKind = "not_found"
)

// Error codes identifying the business condition behind an error.
const (
	ErrInvalidParams         = "INVALID_PARAMS"
	ErrInvalidAmount         = "INVALID_AMOUNT"
	ErrInvalidFeeRate        = "INVALID_FEE_RATE"
	ErrUnknownToken          = "UNKNOWN_TOKEN"
	ErrInvalidAddress        = "INVALID_ADDRESS"
	ErrIntentNotFound        = "INTENT_NOT_FOUND"
	ErrIntentAlreadyRefunded = "INTENT_ALREADY_REFUNDED"
	ErrNotPaid               = "NOT_PAID"
	ErrInsufficientAmount    = "INSUFFICIENT_AMOUNT"
	ErrWrongRecipient        = "WRONG_RECIPIENT"
	ErrTxNotIndexed          = "TX_NOT_INDEXED"
	ErrNetworkError          = "NETWORK_ERROR"
	ErrRPCError              = "RPC_ERROR"
	ErrInvalidResponse       = "INVALID_RESPONSE"
	ErrStoreError            = "STORE_ERROR"
)

// Error is the typed error surfaced across every package boundary. The kind
// is preserved end to end so transport failures are never mistaken for
// business rejections.
type Error struct {
	Kind    ErrorKind   `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is matching on kind+code sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewValidationError reports malformed input caught before any mutation.
func NewValidationError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewStateConflictError reports a request invalid against current state.
func NewStateConflictError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStateConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing entity or a not-yet-indexed lookup.
func NewNotFoundError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewTransportError wraps a network-level failure reaching the endpoint.
func NewTransportError(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransport, Code: ErrNetworkError, Message: fmt.Sprintf(format, args...), cause: cause}
}

// NewProtocolError reports an RPC-level rejection or a malformed response.
func NewProtocolError(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or an empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or an empty string for foreign errors.
func CodeOf(err error) string {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is a transport failure that may be retried
// with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransport
}

// IsNotFound reports whether err is a not-found outcome, including the
// poll-recoverable "transaction not indexed yet" case.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
