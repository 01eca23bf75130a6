package supra

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/Trendyol/supra/internal/curl"
)

// postProcess runs after the circuit has recorded a successful exchange.
// Nothing here affects circuit statistics.
func postProcess(resp *ClientResponse, p *preparedRequest, opts *RequestOptions, global GlobalOptions) error {
	if global.enabled() && flagged(opts.Headers, global.FlagHeaderNameToShowCurlOnResponse) {
		if resp.Response.Headers == nil {
			resp.Response.Headers = make(http.Header)
		}
		resp.Response.Headers[global.ResponseHeaderNameForCurl] = []string{curl.Build(p.display)}
	}

	if !opts.JSON || resp.Body == "" || !isJSONContentType(resp.Response.Headers.Get("Content-Type")) {
		return nil
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(resp.Body), &parsed); err != nil {
		return &ClientError{
			Type:       ErrorTypeJSONParse,
			Message:    "response declared JSON but could not be parsed",
			Cause:      err,
			StatusCode: resp.Response.StatusCode,
		}
	}
	resp.JSON = parsed
	return nil
}

// flagged reports whether headers carry a non-empty value for name.
func flagged(headers map[string]string, name string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, name) && v != "" {
			return true
		}
	}
	return false
}

func isJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), ContentTypeJSON)
}

// Decode unmarshals the body into v regardless of the declared content type.
func (r *ClientResponse) Decode(v interface{}) error {
	if err := json.Unmarshal([]byte(r.Body), v); err != nil {
		return &ClientError{
			Type:       ErrorTypeJSONParse,
			Message:    "failed to decode response body",
			Cause:      err,
			StatusCode: r.Response.StatusCode,
		}
	}
	return nil
}

// Curl returns the curl command added by the curl debugging hook, if any.
func (r *ClientResponse) Curl(global GlobalOptions) string {
	if r.Response.Headers == nil || global.ResponseHeaderNameForCurl == "" {
		return ""
	}
	if v := r.Response.Headers[global.ResponseHeaderNameForCurl]; len(v) > 0 {
		return v[0]
	}
	return ""
}
