package supra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClientError(t *testing.T) {
	err := &ClientError{
		Type:    ErrorTypeTransport,
		Message: "connection refused",
	}

	expectedMsg := "TransportError: connection refused"
	if err.Error() != expectedMsg {
		t.Errorf("Expected '%s', got '%s'", expectedMsg, err.Error())
	}

	cause := errors.New("dial tcp: refused")
	errWithCause := &ClientError{
		Type:      ErrorTypeTransport,
		Message:   "request failed",
		Cause:     cause,
		Name:      "orders",
		RequestID: "req-1",
	}

	expectedMsgWithCause := "[req-1] TransportError: request failed (dial tcp: refused) [orders]"
	if errWithCause.Error() != expectedMsgWithCause {
		t.Errorf("Expected '%s', got '%s'", expectedMsgWithCause, errWithCause.Error())
	}
}

func TestClientErrorNil(t *testing.T) {
	var err *ClientError
	if err.Error() != "<nil>" {
		t.Errorf("Expected '<nil>', got '%s'", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("Expected nil unwrap on nil error")
	}
	if err.Is(&ClientError{}) {
		t.Error("Expected nil error not to match")
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	err := &ClientError{Type: ErrorTypeTimeout, Message: "timed out", Cause: ErrTimeout}

	if err.Unwrap() != ErrTimeout {
		t.Errorf("Expected unwrapped error to be %v, got %v", ErrTimeout, err.Unwrap())
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("Expected errors.Is to find ErrTimeout")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, &ClientError{Type: ErrorTypeTimeout}) {
		t.Error("Expected errors.Is to match by type")
	}
	if errors.Is(wrapped, &ClientError{Type: ErrorTypeDecode}) {
		t.Error("Expected errors.Is not to match a different type")
	}
}

func TestClientErrorDebugInfo(t *testing.T) {
	err := &ClientError{
		Type:       ErrorTypeJSONParse,
		Message:    "response is not valid JSON",
		Cause:      errors.New("unexpected end"),
		RequestID:  "abc",
		Name:       "catalog",
		Method:     "GET",
		URL:        "http://example.com",
		StatusCode: 200,
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:   time.Second,
	}

	info := err.DebugInfo()
	for _, want := range []string{
		"Error Type: JSONParseError",
		"Request ID: abc",
		"Circuit: catalog",
		"Method: GET",
		"URL: http://example.com",
		"Status Code: 200",
		"Timestamp: 2024-01-02T03:04:05Z",
		"Duration: 1s",
		"Cause: unexpected end",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected DebugInfo to contain %q, got:\n%s", want, info)
		}
	}

	var nilErr *ClientError
	if nilErr.DebugInfo() != "Error: <nil>" {
		t.Errorf("Expected nil DebugInfo, got %q", nilErr.DebugInfo())
	}
}

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"circuit open sentinel", ErrCircuitOpen, true},
		{"timeout sentinel", ErrTimeout, true},
		{"circuit timeout sentinel", ErrCircuitTimeout, true},
		{"transport", &ClientError{Type: ErrorTypeTransport}, true},
		{"wrapped timeout", fmt.Errorf("x: %w", &ClientError{Type: ErrorTypeTimeout}), true},
		{"decode", &ClientError{Type: ErrorTypeDecode}, false},
		{"json", &ClientError{Type: ErrorTypeJSONParse}, false},
		{"validation", &ClientError{Type: ErrorTypeValidation}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want string
	}{
		{ErrCircuitOpen, ErrorTypeCircuitOpen},
		{ErrCircuitTimeout, ErrorTypeTimeout},
		{&ClientError{Type: ErrorTypeDecode, Message: "bad"}, ErrorTypeDecode},
		{context.Canceled, ErrorTypeCanceled},
		{errors.New("reset"), ErrorTypeTransport},
	}

	for _, tc := range testCases {
		if got, _ := classify(tc.err); got != tc.want {
			t.Errorf("classify(%v): expected %s, got %s", tc.err, tc.want, got)
		}
	}
}
