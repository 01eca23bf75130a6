package supra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Trendyol/supra/internal/codec"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when a circuit rejects a call without running it
	ErrCircuitOpen = errors.New("supra: circuit open")

	// ErrCircuitTimeout is returned when a call outlives the circuit timeout
	ErrCircuitTimeout = errors.New("supra: circuit timeout")

	// ErrTimeout is returned when no response arrives within the HTTP timeout
	ErrTimeout = errors.New("supra: request timeout")

	// ErrBodyTooLarge is returned when a decoded response exceeds the size limit
	ErrBodyTooLarge = codec.ErrBodyTooLarge
)

// Error types carried by ClientError.
const (
	ErrorTypeCircuitOpen = "CircuitOpenError"
	ErrorTypeTransport   = "TransportError"
	ErrorTypeTimeout     = "TimeoutError"
	ErrorTypeDecode      = "DecodeError"
	ErrorTypeJSONParse   = "JSONParseError"
	ErrorTypeValidation  = "ValidationError"
	ErrorTypeCanceled    = "CanceledError"
)

// ClientError describes a failed request with enough context to debug it.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Name       string
	Method     string
	URL        string
	StatusCode int
	Timestamp  time.Time
	Duration   time.Duration
}

// IsTransient reports whether err is a failure that may clear up on its own:
// rejections by an open circuit, timeouts and transport failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCircuitTimeout) {
		return true
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeTransport, ErrorTypeTimeout, ErrorTypeCircuitOpen:
			return true
		default:
			return false
		}
	}

	return false
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Name != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Name)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Name != "" {
		info += fmt.Sprintf("Circuit: %s\n", e.Name)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// classify maps an error returned by a circuit to its ClientError type.
func classify(err error) (string, string) {
	var clientErr *ClientError
	switch {
	case errors.As(err, &clientErr):
		return clientErr.Type, clientErr.Message
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeCircuitOpen, "circuit is open"
	case errors.Is(err, ErrCircuitTimeout), errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout, "request timed out"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeCanceled, "request canceled by caller"
	default:
		return ErrorTypeTransport, "request failed"
	}
}
