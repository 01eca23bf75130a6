package supra

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Trendyol/supra/internal/codec"
)

// Client issues named HTTP requests, each guarded by the circuit registered
// under its name. Circuits live in a Registry that by default is shared by
// the whole process. It is safe for concurrent use.
type Client struct {
	registry         *Registry
	executor         *executor
	pools            *pools
	ownPools         bool
	transportConfig  *TransportConfig
	transport        RoundTripper
	httpTimeout      time.Duration
	circuitDefaults  CircuitConfig
	maxResponseBytes int64
	middleware       []Middleware
	compress         func([]byte) ([]byte, error)
	metrics          *MetricsCollector
	debug            *DebugConfig
	logger           Logger
	validationError  error
	detachObserver   func()

	globalMu sync.RWMutex
	global   GlobalOptions
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	defaults := DefaultCircuitConfig()
	defaults.Timeout = 0

	client := &Client{
		registry:         nil,
		httpTimeout:      10 * time.Second,
		circuitDefaults:  defaults,
		maxResponseBytes: DefaultMaxResponseBytes,
		middleware:       []Middleware{},
		compress:         codec.Encode,
		metrics:          nil,
		debug:            DefaultDebugConfig(),
		logger:           nil,
	}

	for _, option := range options {
		option(client)
	}

	if client.registry == nil {
		client.registry = DefaultRegistry()
	}
	if client.transportConfig != nil {
		client.pools = newPools(*client.transportConfig)
		client.ownPools = true
	} else {
		client.pools = defaultPools()
	}
	if client.debug != nil && client.debug.Enabled && client.logger == nil {
		client.logger = NewSimpleLogger()
	}

	client.executor = &executor{
		pools:                 client.pools,
		transport:             client.transport,
		middleware:            client.middleware,
		compress:              client.compress,
		maxResponseBytes:      client.maxResponseBytes,
		onCompressionFallback: client.compressionFallback,
	}

	if client.metrics != nil || client.debugEnabled(client.logCircuit) {
		client.detachObserver = client.registry.OnStateChange(client.circuitChanged)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Request sends a request guarded by the circuit called name. On a JSON parse
// failure both the response and the error are returned.
func (c *Client) Request(ctx context.Context, name, url string, opts *RequestOptions) (*ClientResponse, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	start := time.Now()
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = "GET"
	}

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debugEnabled(c.logRequests) {
		c.logger.Debug("Starting request", "requestID", requestID, "name", name, "method", method, "url", url)
	}

	prepared, err := c.executor.prepare(name, url, opts)
	if err != nil {
		cause := &ClientError{Type: ErrorTypeValidation, Message: "invalid request", Cause: err}
		return nil, c.createClientError(cause, requestID, name, method, url, time.Since(start))
	}

	circuit, created := c.registry.resolve(name, c.circuitConfigFor(opts))
	if created {
		c.metrics.RecordCircuitState(name, StateClosed)
	}

	c.metrics.RecordRequestStart(name, method)
	defer c.metrics.RecordRequestEnd(name, method)

	var result *ClientResponse
	err = circuit.Execute(ctx, func(callCtx context.Context) error {
		resp, err := c.executor.send(callCtx, prepared, c.httpTimeoutFor(opts), opts.followRedirect())
		if err != nil {
			return err
		}
		result = resp
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		return nil, c.createClientError(err, requestID, name, method, url, duration)
	}

	c.metrics.RecordRequest(name, method, result.Response.StatusCode, duration)

	if err := postProcess(result, prepared, opts, c.GlobalOptions()); err != nil {
		return result, c.createClientError(err, requestID, name, method, url, duration)
	}

	if c.debugEnabled(c.logRequests) {
		c.logger.Debug("Request completed", "requestID", requestID, "name", name, "status", result.Response.StatusCode, "duration", duration)
	}

	return result, nil
}

// SetGlobalOptions replaces the curl debugging configuration.
func (c *Client) SetGlobalOptions(opts GlobalOptions) {
	c.globalMu.Lock()
	defer c.globalMu.Unlock()
	c.global = opts
}

// GlobalOptions returns the current curl debugging configuration.
func (c *Client) GlobalOptions() GlobalOptions {
	c.globalMu.RLock()
	defer c.globalMu.RUnlock()
	return c.global
}

// Registry returns the registry holding this client's circuits.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Close stops this client observing circuit transitions and releases idle
// connections of pools it owns. Clients on the shared pools leave them
// untouched.
func (c *Client) Close() {
	if c.detachObserver != nil {
		c.detachObserver()
	}
	if c.ownPools {
		c.pools.closeIdle()
	}
}

func (c *Client) circuitConfigFor(opts *RequestOptions) CircuitConfig {
	cfg := CircuitConfig{
		ErrorThresholdPercentage: opts.ErrorThresholdPercentage,
		ResetTimeout:             opts.ResetTimeout,
		RollingWindowDuration:    opts.RollingWindowDuration,
		BucketCount:              opts.BucketCount,
		VolumeThreshold:          opts.VolumeThreshold,
		Timeout:                  opts.Timeout,
	}
	if cfg.Timeout == 0 {
		switch {
		case opts.HTTPTimeout != 0:
			cfg.Timeout = opts.HTTPTimeout
		case c.circuitDefaults.Timeout != 0:
			cfg.Timeout = c.circuitDefaults.Timeout
		default:
			cfg.Timeout = c.httpTimeout
		}
	}
	return cfg.withDefaults(c.circuitDefaults)
}

func (c *Client) httpTimeoutFor(opts *RequestOptions) time.Duration {
	if opts.HTTPTimeout != 0 {
		return opts.HTTPTimeout
	}
	return c.httpTimeout
}

func (c *Client) createClientError(err error, requestID, name, method, url string, duration time.Duration) *ClientError {
	typ, msg := classify(err)
	clientErr := &ClientError{Type: typ, Message: msg, Cause: err}

	var inner *ClientError
	if errors.As(err, &inner) {
		copied := *inner
		clientErr = &copied
	}

	clientErr.RequestID = requestID
	clientErr.Name = name
	clientErr.Method = method
	clientErr.URL = url
	clientErr.Timestamp = time.Now()
	clientErr.Duration = duration

	c.metrics.RecordError(clientErr.Type, name)
	if c.debugEnabled(c.logRequests) {
		c.logger.Debug("Request failed", "requestID", requestID, "name", name, "type", clientErr.Type, "error", clientErr.Error())
	}

	return clientErr
}

func (c *Client) compressionFallback(name string, err error) {
	c.metrics.RecordCompressionFallback(name)
	if c.logger != nil && (c.debug == nil || c.debug.LogCompression) {
		c.logger.Warn("Request compression failed, sending uncompressed payload", "name", name, "error", err)
	}
}

func (c *Client) circuitChanged(name string, from, to CircuitState) {
	c.metrics.RecordCircuitTransition(name, from, to)
	if c.debugEnabled(c.logCircuit) {
		c.logger.Info("Circuit state changed", "name", name, "from", from.String(), "to", to.String())
	}
}

func (c *Client) logRequests(d *DebugConfig) bool { return d.LogRequests }
func (c *Client) logCircuit(d *DebugConfig) bool  { return d.LogCircuit }

func (c *Client) debugEnabled(category func(*DebugConfig) bool) bool {
	return c.debug != nil && c.debug.Enabled && c.logger != nil && category(c.debug)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
