package shipper

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure the bridge can surface.
var (
	// ErrNotConfigured indicates the shop has no carrier credential yet.
	ErrNotConfigured = errors.New("shop not configured")

	// ErrNotApplicable indicates the trigger is not for this carrier: the destination
	// is outside the allow-list or the webhook source does not match. It is a no-op
	// outcome, not a failure.
	ErrNotApplicable = errors.New("not applicable")

	// ErrUnrecognizedShop indicates the shop identifier could not be extracted.
	ErrUnrecognizedShop = errors.New("unrecognized shop")

	// ErrCarrierUnavailable indicates a network failure, timeout or server-side
	// status from the carrier. Retryable with the same reference id.
	ErrCarrierUnavailable = errors.New("carrier unavailable")

	// ErrCarrierProtocol indicates the carrier answered with an unexpected status
	// or a body that does not match the agreed JSON shape.
	ErrCarrierProtocol = errors.New("carrier protocol error")

	// ErrInvalidRequest indicates the inbound payload could not be decoded.
	ErrInvalidRequest = errors.New("invalid request")
)

// Error carries a taxonomy kind together with the context needed for manual
// reconciliation. It never holds credentials.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Body       string
	Cause      error
}

// NewError creates an Error of the given kind for an operation.
func NewError(kind error, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithBody attaches the raw carrier body, truncated to keep log lines bounded.
func (e *Error) WithBody(body []byte) *Error {
	const maxBody = 2048
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	e.Body = string(body)
	return e
}

// IsRetryable returns true if the caller may re-invoke the operation with the same
// reference id.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCarrierUnavailable)
}

// Kind returns the taxonomy sentinel of err, or nil when err is unclassified.
func Kind(err error) error {
	for _, kind := range []error{
		ErrNotApplicable,
		ErrNotConfigured,
		ErrUnrecognizedShop,
		ErrInvalidRequest,
		ErrCarrierUnavailable,
		ErrCarrierProtocol,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
