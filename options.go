package supra

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WithDefaultHTTPTimeout sets the HTTP timeout used when a request does not
// set one. A negative value disables the timer.
func WithDefaultHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpTimeout = d
	}
}

// WithCircuitDefaults sets the values used for circuit fields a request
// leaves unset.
func WithCircuitDefaults(config CircuitConfig) Option {
	return func(c *Client) {
		c.circuitDefaults = config.withDefaults(DefaultCircuitConfig())
		if config.Timeout == 0 {
			c.circuitDefaults.Timeout = 0
		}
	}
}

// WithRegistry uses registry instead of the process-wide default.
func WithRegistry(registry *Registry) Option {
	return func(c *Client) {
		c.registry = registry
	}
}

// WithTransportConfig gives the client its own connection pools.
func WithTransportConfig(config TransportConfig) Option {
	return func(c *Client) {
		c.transportConfig = &config
	}
}

// WithTransport replaces the connection pools with rt.
func WithTransport(rt RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithMaxResponseBytes caps decoded response bodies. Zero or negative removes
// the cap.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

// WithRequestCompressor replaces the gzip encoder used for CompressRequest.
func WithRequestCompressor(fn func([]byte) ([]byte, error)) Option {
	return func(c *Client) {
		c.compress = fn
	}
}

// WithGlobalOptions sets the initial curl debugging configuration.
func WithGlobalOptions(opts GlobalOptions) Option {
	return func(c *Client) {
		c.global = opts
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables metrics on the given registerer.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTimeouts()...)
	errors = append(errors, c.validateCircuitDefaults()...)
	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)

	if c.registry == nil {
		errors = append(errors, "registry cannot be nil")
	}
	if c.compress == nil {
		errors = append(errors, "request compressor cannot be nil")
	}

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateTimeouts() []string {
	var errors []string

	if c.httpTimeout == 0 {
		errors = append(errors, "httpTimeout must be non-zero (negative disables it)")
	}
	if c.httpTimeout > 10*time.Minute {
		errors = append(errors, "httpTimeout > 10m may cause requests to hang for too long")
	}

	return errors
}

func (c *Client) validateCircuitDefaults() []string {
	var errors []string

	d := c.circuitDefaults
	if d.ErrorThresholdPercentage <= 0 || d.ErrorThresholdPercentage > 100 {
		errors = append(errors, "circuit ErrorThresholdPercentage must be between 1 and 100")
	}
	if d.ResetTimeout <= 0 {
		errors = append(errors, "circuit ResetTimeout must be positive")
	}
	if d.RollingWindowDuration <= 0 {
		errors = append(errors, "circuit RollingWindowDuration must be positive")
	}
	if d.BucketCount <= 0 {
		errors = append(errors, "circuit BucketCount must be positive")
	} else if d.RollingWindowDuration > 0 && d.RollingWindowDuration/time.Duration(d.BucketCount) <= 0 {
		errors = append(errors, "circuit RollingWindowDuration is too short for BucketCount")
	}
	if d.VolumeThreshold < 0 {
		errors = append(errors, "circuit VolumeThreshold must be non-negative")
	}

	return errors
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.transportConfig == nil {
		return errors
	}
	tc := c.transportConfig
	if tc.MaxIdleConns < 0 || tc.MaxIdleConnsPerHost < 0 || tc.MaxConnsPerHost < 0 {
		errors = append(errors, "transport connection limits must be non-negative")
	}
	if tc.IdleConnTimeout < 0 || tc.DialTimeout < 0 || tc.TLSHandshakeTimeout < 0 {
		errors = append(errors, "transport timeouts must be non-negative")
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}
