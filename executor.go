package supra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/atomic"

	"github.com/Trendyol/supra/internal/codec"
	"github.com/Trendyol/supra/internal/curl"
)

// DefaultMaxResponseBytes caps a decoded response body.
const DefaultMaxResponseBytes int64 = 32 << 20

const (
	phasePending int32 = iota
	phaseResponded
	phaseTimedOut
)

// executor performs one HTTP exchange and decodes its body.
type executor struct {
	pools            *pools
	transport        RoundTripper
	middleware       []Middleware
	compress         func([]byte) ([]byte, error)
	maxResponseBytes int64

	// onCompressionFallback is told when a payload is sent uncompressed
	// because compression failed.
	onCompressionFallback func(name string, err error)

	aborts atomic.Int64
}

// preparedRequest is everything resolved before the circuit is entered.
type preparedRequest struct {
	name    string
	method  string
	url     *url.URL
	host    string
	header  http.Header
	body    []byte
	display curl.Command
}

func (e *executor) prepare(name, target string, opts *RequestOptions) (*preparedRequest, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("invalid method %q", opts.Method)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", target)
	}

	body, contentType, err := resolvePayload(opts)
	if err != nil {
		return nil, err
	}

	header := make(http.Header, len(opts.Headers)+3)
	var host string
	for k, v := range opts.Headers {
		switch {
		case strings.EqualFold(k, "Host"):
			host = v
		case strings.EqualFold(k, "Content-Length"), strings.EqualFold(k, "Transfer-Encoding"):
		default:
			header[k] = []string{v}
		}
	}

	display := curl.Command{Method: method, URL: target, Headers: make(map[string]string, len(opts.Headers)+1), Body: string(body)}
	for k, v := range opts.Headers {
		display.Headers[k] = v
	}

	setManaged(header, "Accept-Encoding", codec.AdvertisedEncodings())
	if contentType != "" {
		setManaged(header, "Content-Type", contentType)
		if !hasHeader(opts.Headers, "Content-Type") {
			display.Headers["Content-Type"] = contentType
		}
	}

	if opts.CompressRequest && len(body) > 0 {
		compressed, err := e.compress(body)
		if err != nil {
			deleteManaged(header, "Content-Encoding")
			if e.onCompressionFallback != nil {
				e.onCompressionFallback(name, err)
			}
		} else {
			body = compressed
			setManaged(header, "Content-Encoding", "gzip")
		}
	}

	return &preparedRequest{
		name:    name,
		method:  method,
		url:     u,
		host:    host,
		header:  header,
		body:    body,
		display: display,
	}, nil
}

// resolvePayload serializes the body or form and picks the content type.
// The body wins when both are present.
func resolvePayload(opts *RequestOptions) ([]byte, string, error) {
	var contentType string
	if opts.JSON {
		contentType = ContentTypeJSON
	}

	switch {
	case !opts.Body.IsAbsent():
		if opts.Body.kind == payloadRaw {
			if !opts.JSON && hasHeader(opts.Headers, "Content-Type") {
				return []byte(opts.Body.raw), "", nil
			}
			return []byte(opts.Body.raw), ContentTypeJSON, nil
		}
		b, err := json.Marshal(opts.Body.value)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return b, ContentTypeJSON, nil
	case !opts.Form.IsAbsent():
		if opts.Form.kind == payloadRaw {
			return []byte(opts.Form.raw), ContentTypeForm, nil
		}
		s, err := encodeForm(opts.Form.value)
		if err != nil {
			return nil, "", err
		}
		return []byte(s), ContentTypeForm, nil
	}

	return nil, contentType, nil
}

func encodeForm(v interface{}) (string, error) {
	switch form := v.(type) {
	case url.Values:
		return form.Encode(), nil
	case map[string][]string:
		return url.Values(form).Encode(), nil
	case map[string]string:
		values := make(url.Values, len(form))
		for k, s := range form {
			values.Set(k, s)
		}
		return values.Encode(), nil
	case map[string]interface{}:
		values := make(url.Values, len(form))
		for k, item := range form {
			switch item := item.(type) {
			case []string:
				values[k] = append(values[k], item...)
			case []interface{}:
				for _, elem := range item {
					values.Add(k, fmt.Sprint(elem))
				}
			case nil:
				values.Set(k, "")
			default:
				values.Set(k, fmt.Sprint(item))
			}
		}
		return values.Encode(), nil
	default:
		return "", fmt.Errorf("unsupported form type %T", v)
	}
}

// send performs the exchange. The HTTP timeout and the response race to a
// single outcome: whichever settles first wins and the other is ignored.
func (e *executor) send(ctx context.Context, p *preparedRequest, timeout time.Duration, follow bool) (*ClientResponse, error) {
	reqCtx, abort := context.WithCancel(ctx)
	defer abort()

	req, err := http.NewRequestWithContext(reqCtx, p.method, p.url.String(), nil)
	if err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "invalid request", Cause: err}
	}
	req.Header = p.header.Clone()
	if p.host != "" {
		req.Host = p.host
	}
	if len(p.body) > 0 {
		body := p.body
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}

	client := &http.Client{
		Transport:     e.roundTripper(p.url.Scheme),
		CheckRedirect: redirectPolicy(follow),
	}

	var phase atomic.Int32
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			if phase.CompareAndSwap(phasePending, phaseTimedOut) {
				e.aborts.Inc()
				abort()
			}
		})
		defer timer.Stop()
	}

	resp, err := client.Do(req)
	if !phase.CompareAndSwap(phasePending, phaseResponded) {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &ClientError{
			Type:    ErrorTypeTimeout,
			Message: fmt.Sprintf("no response within %v", timeout),
			Cause:   ErrTimeout,
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ClientError{Type: ErrorTypeTransport, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	text, err := codec.Decode(resp.Header, resp.Body, e.maxResponseBytes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ClientError{
			Type:       ErrorTypeDecode,
			Message:    "failed to decode response body",
			Cause:      err,
			StatusCode: resp.StatusCode,
		}
	}

	return &ClientResponse{
		Body: text,
		Response: Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
		},
	}, nil
}

func (e *executor) roundTripper(scheme string) RoundTripper {
	var base RoundTripper
	if e.transport != nil {
		base = e.transport
	} else {
		base = e.pools.forScheme(scheme)
	}

	if len(e.middleware) == 0 {
		return base
	}

	current := RoundTripper(base)
	for i := len(e.middleware) - 1; i >= 0; i-- {
		middleware := e.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}
	return current
}

func redirectPolicy(follow bool) func(*http.Request, []*http.Request) error {
	if follow {
		return nil
	}
	return func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
}

// setManaged replaces every case-variant of key with a single canonical entry.
func setManaged(header http.Header, key, value string) {
	deleteManaged(header, key)
	header.Set(key, value)
}

func deleteManaged(header http.Header, key string) {
	for k := range header {
		if strings.EqualFold(k, key) {
			delete(header, k)
		}
	}
}

func hasHeader(headers map[string]string, key string) bool {
	for k := range headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func validMethod(method string) bool {
	for _, r := range method {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune(`"(),/:;<=>?@[\]{}`, r) {
			return false
		}
	}
	return method != ""
}
