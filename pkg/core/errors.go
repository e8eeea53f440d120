package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an exchange-reported error.
type ErrorType int

// Error type constants categorize semantic errors for caller-side handling.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit indicates rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeAuthentication indicates invalid credentials, signature or nonce.
	ErrorTypeAuthentication
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeNotFound indicates the requested resource does not exist.
	ErrorTypeNotFound
	// ErrorTypeServerError indicates a server-side error or maintenance.
	ErrorTypeServerError
	// ErrorTypeInsufficientFunds indicates account lacks required balance.
	ErrorTypeInsufficientFunds
	// ErrorTypeInvalidOrder indicates the order violates exchange rules.
	ErrorTypeInvalidOrder
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"RATE_LIMIT",
		"AUTHENTICATION",
		"BAD_REQUEST",
		"NOT_FOUND",
		"SERVER_ERROR",
		"INSUFFICIENT_FUNDS",
		"INVALID_ORDER",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrFeedClosed is returned when reading from a feed that has been closed locally.
	ErrFeedClosed = errors.New("feed is closed")
	// ErrInvalidState is returned when a feed operation is not valid in its current state.
	ErrInvalidState = errors.New("invalid feed state")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// ExchangeError is a semantic error: the exchange answered with its structured
// error body {result, reason, message}. It is never retried.
type ExchangeError struct {
	// Type categorizes the error from its reason code.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code of the response, zero when unknown.
	StatusCode int `json:"status_code"`
	// Result is the exchange's result field, "error" for failures.
	Result string `json:"result"`
	// Reason is the exchange's machine-readable reason code, e.g. "InvalidSignature".
	Reason string `json:"reason"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Timestamp is when the error was decoded.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[gemini] %s (%d/%s): %s", e.Type, e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("[gemini] %s (%s): %s", e.Type, e.Reason, e.Message)
}

// NewExchangeError creates an ExchangeError classified from its reason code.
// The timestamp is automatically set to the current time.
func NewExchangeError(result, reason, message string) *ExchangeError {
	return &ExchangeError{
		Type:      ReasonType(reason),
		Result:    result,
		Reason:    reason,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithStatus records the HTTP status code the error arrived with.
func (e *ExchangeError) WithStatus(code int) *ExchangeError {
	e.StatusCode = code
	return e
}

// TransportError is a connection or I/O failure below the exchange protocol.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a body that matched neither the expected shape
// nor the exchange's error shape. Body holds the raw text for diagnosis.
type MalformedResponseError struct {
	Err  error
	Body string
	// Truncated is set when Body was cut to the diagnostic limit.
	Truncated bool
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v: %s", e.Err, e.Body)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ClassificationError reports a feed frame that matched no known shape.
// It travels as a stream item; the session keeps running.
type ClassificationError struct {
	Err error
	Raw string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify frame: %v: %s", e.Err, e.Raw)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// HandshakeError reports a failed subscribe send or a rejected authenticated
// upgrade. The stream of that session never starts.
type HandshakeError struct {
	Feed string
	// StatusCode is the upgrade response status, zero when the failure was a write.
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s handshake (%d): %v", e.Feed, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s handshake: %v", e.Feed, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// EnvelopeError reports a request body that cannot be serialized into a signed envelope.
type EnvelopeError struct {
	Path string
	Err  error
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("build envelope for %s: %v", e.Path, e.Err)
}

func (e *EnvelopeError) Unwrap() error { return e.Err }

// IsTransportError returns true if the error is a connection or I/O failure.
func IsTransportError(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsSemanticError returns true if the exchange reported a structured error.
func IsSemanticError(err error) bool {
	var e *ExchangeError
	return errors.As(err, &e)
}

// IsMalformedResponse returns true if the response body could not be interpreted.
func IsMalformedResponse(err error) bool {
	var e *MalformedResponseError
	return errors.As(err, &e)
}

// IsHandshakeError returns true if a feed handshake failed.
func IsHandshakeError(err error) bool {
	var e *HandshakeError
	return errors.As(err, &e)
}

// IsEnvelopeError returns true if a request body could not be enveloped.
func IsEnvelopeError(err error) bool {
	var e *EnvelopeError
	return errors.As(err, &e)
}

// IsRateLimitError returns true if the exchange rejected the request for rate.
func IsRateLimitError(err error) bool {
	var e *ExchangeError
	return errors.As(err, &e) && e.Type == ErrorTypeRateLimit
}

// IsAuthenticationError returns true if the exchange rejected key, signature or nonce.
// Authentication errors require credential validation and are not retryable.
func IsAuthenticationError(err error) bool {
	var e *ExchangeError
	return errors.As(err, &e) && e.Type == ErrorTypeAuthentication
}

// IsTerminalError returns true if resending the same request cannot succeed.
func IsTerminalError(err error) bool {
	var e *ExchangeError
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == ErrorTypeInsufficientFunds ||
		e.Type == ErrorTypeInvalidOrder ||
		e.Type == ErrorTypeNotFound
}

// IsClassificationError returns true if a feed frame matched no known shape.
// The stream that produced it is still usable.
func IsClassificationError(err error) bool {
	var e *ClassificationError
	return errors.As(err, &e)
}
