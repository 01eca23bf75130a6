// Package supra provides an HTTP client where every request is named and
// guarded by a circuit breaker registered under that name:
//
//   - Circuits are created on first use and shared process-wide by name
//   - Failure rates are tracked in a rolling window of time buckets
//   - Open circuits reject calls without touching the network; a single probe
//     decides whether to close again after the reset timeout
//   - Responses are decoded from gzip, deflate, br and zstd, and transcoded to UTF-8
//   - Request payloads can be gzip compressed, falling back to plain on failure
//   - Optional curl rendering of outbound requests for debugging
//   - Prometheus metrics and lightweight structured debug logging
//
// Typical usage:
//
//	client := supra.New(supra.WithMetrics())
//	resp, err := client.Request(ctx, "catalog", "https://api.example.com/items", &supra.RequestOptions{
//	    JSON:        true,
//	    HTTPTimeout: 2 * time.Second,
//	})
//
// A completed HTTP exchange counts as a success for the circuit whatever its
// status code; classify statuses in a Middleware if they should count as
// failures. The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) and enable debug flags selectively (WithDebug /
// WithDebugConfig) for insight without noise.
package supra
