package supra

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Header values the client sets or recognizes.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeForm        = "application/x-www-form-urlencoded"
	ContentTypeEventStream = "text/event-stream"
	CacheControlNoCache    = "no-cache"
	ConnectionKeepAlive    = "keep-alive"
)

// Middleware wraps the transport round trip of every attempt.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)

type payloadKind int8

const (
	payloadAbsent payloadKind = iota
	payloadRaw
	payloadStructured
)

// Payload is a request body or form: absent, a raw string sent verbatim, or
// a structured value serialized by the client. The zero value is absent.
type Payload struct {
	kind  payloadKind
	raw   string
	value interface{}
}

// Raw returns a payload sent exactly as given.
func Raw(s string) Payload {
	return Payload{kind: payloadRaw, raw: s}
}

// Structured returns a payload serialized at request-build time: JSON for a
// body, URL encoding for a form.
func Structured(v interface{}) Payload {
	if v == nil {
		return Payload{}
	}
	return Payload{kind: payloadStructured, value: v}
}

// IsAbsent reports whether no payload was supplied.
func (p Payload) IsAbsent() bool {
	return p.kind == payloadAbsent
}

// RequestOptions configures a single named request. Circuit fields are only
// read the first time a name is seen; the circuit keeps that snapshot.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Body wins over Form when both are present.
	Body Payload
	Form Payload
	// Headers are written with their keys exactly as supplied.
	Headers map[string]string
	// JSON requests a JSON content type and JSON parsing of the response.
	JSON bool
	// FollowRedirect defaults to true when nil.
	FollowRedirect *bool
	// HTTPTimeout bounds the wait for response headers. Zero uses the client
	// default; negative disables the timer.
	HTTPTimeout time.Duration
	// CompressRequest gzips the outgoing payload.
	CompressRequest bool

	// ErrorThresholdPercentage follows CircuitConfig: zero takes the default.
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	RollingWindowDuration    time.Duration
	BucketCount              int
	VolumeThreshold          int
	// Timeout is the circuit-level deadline for the whole call, body decoding
	// included. Zero derives it from HTTPTimeout; negative disables it.
	// With the derived value the circuit timer is armed first, so it usually
	// fires before the HTTP timer and the call fails with ErrCircuitTimeout.
	// Set Timeout above HTTPTimeout to have ErrTimeout reported instead.
	Timeout time.Duration
}

func (o *RequestOptions) followRedirect() bool {
	if o.FollowRedirect == nil {
		return true
	}
	return *o.FollowRedirect
}

// Bool returns a pointer to b, for optional fields such as FollowRedirect.
func Bool(b bool) *bool {
	return &b
}

// ClientResponse is the outcome of a successful request.
type ClientResponse struct {
	Body     string
	Response Response
	// JSON holds the parsed body when JSON was requested and the response
	// declared application/json.
	JSON interface{}
}

// Response carries the status line and headers of the exchange.
type Response struct {
	StatusCode int
	Headers    http.Header
}

// GlobalOptions enables curl debugging: when a request carries the flag
// header, the equivalent curl command is added to the response headers.
type GlobalOptions struct {
	FlagHeaderNameToShowCurlOnResponse string
	ResponseHeaderNameForCurl          string
}

func (g GlobalOptions) enabled() bool {
	return g.FlagHeaderNameToShowCurlOnResponse != "" && g.ResponseHeaderNameForCurl != ""
}

// CircuitConfig tunes a circuit. Zero fields take client defaults.
type CircuitConfig struct {
	// ErrorThresholdPercentage opens the circuit once the window's error
	// percentage reaches it. Zero takes the default (50) and values above
	// 100 are clamped; 1 is the strictest setting.
	ErrorThresholdPercentage int
	ResetTimeout             time.Duration
	RollingWindowDuration    time.Duration
	BucketCount              int
	// VolumeThreshold is the minimum number of completed calls in the window
	// before the error percentage can open the circuit.
	VolumeThreshold int
	// Timeout fails calls that run longer; negative disables it.
	Timeout time.Duration
}

// DefaultCircuitConfig returns the defaults applied to new circuits.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		ErrorThresholdPercentage: 50,
		ResetTimeout:             30 * time.Second,
		RollingWindowDuration:    10 * time.Second,
		BucketCount:              10,
		VolumeThreshold:          0,
		Timeout:                  10 * time.Second,
	}
}

func (c CircuitConfig) withDefaults(d CircuitConfig) CircuitConfig {
	if c.ErrorThresholdPercentage <= 0 {
		c.ErrorThresholdPercentage = d.ErrorThresholdPercentage
	}
	if c.ErrorThresholdPercentage > 100 {
		c.ErrorThresholdPercentage = 100
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.RollingWindowDuration <= 0 {
		c.RollingWindowDuration = d.RollingWindowDuration
	}
	if c.BucketCount <= 0 {
		c.BucketCount = d.BucketCount
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// TransportConfig sizes the two process-wide connection pools.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	KeepAlive           time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	TLSClientConfig     *tls.Config
}

// DefaultTransportConfig returns keep-alive pools with moderate limits.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     90 * time.Second,
		KeepAlive:           30 * time.Second,
		DialTimeout:         30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// CircuitState represents the state of a circuit
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitStats is a point-in-time view of one circuit.
type CircuitStats struct {
	Name            string        `json:"name"`
	State           CircuitState  `json:"state"`
	OpenedAt        time.Time     `json:"openedAt"`
	Successes       int64         `json:"successes"`
	Failures        int64         `json:"failures"`
	Timeouts        int64         `json:"timeouts"`
	Rejects         int64         `json:"rejects"`
	ErrorPercentage float64       `json:"errorPercentage"`
	WindowDuration  time.Duration `json:"windowDuration"`
	BucketCount     int           `json:"bucketCount"`
}
