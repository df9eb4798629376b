package http

import (
	"encoding/json"
	"maps"
	nethttp "net/http"
	"slices"
	"time"
)

// ResponseType selects how a response body is parsed into Response.Data
type ResponseType string

const (
	// ResponseJSON decodes the body with encoding/json into an any value
	ResponseJSON ResponseType = "json"
	// ResponseText exposes the body as a string
	ResponseText ResponseType = "text"
	// ResponseBlob exposes the body as []byte
	ResponseBlob ResponseType = "blob"
	// ResponseBytes exposes the body as []byte
	ResponseBytes ResponseType = "bytes"
	// ResponseForm decodes an urlencoded body into url.Values
	ResponseForm ResponseType = "form"
	// ResponseStream leaves the body unread; Data holds the io.ReadCloser
	ResponseStream ResponseType = "stream"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Request describes one logical HTTP request.
// A Handler owns its own copy; listeners change it only through phase events.
type Request struct {
	Method  string `validate:"omitempty,http_method"`
	URL     string `validate:"required"`
	Headers map[string]string
	Body    []byte
	Auth    *BasicAuth

	// ResponseType defaults to json
	ResponseType ResponseType `validate:"omitempty,oneof=json text blob bytes form stream"`
	// Timeout bounds each attempt; zero leaves attempts unbounded
	Timeout time.Duration `validate:"gte=0"`
	// NoTimeout stops a client default timeout from being applied
	NoTimeout bool
	// MaxAttempts below 2 is raised to DefaultMaxAttempts unless KeepAlive is set
	MaxAttempts int `validate:"gte=0"`
	// RetryOnStatusCode retries 5xx responses
	RetryOnStatusCode bool
	// RetryOnClientError lifts the rule that 4xx responses are never retried
	RetryOnClientError bool
	// KeepAlive sends a single unbounded attempt that outlives the caller context
	KeepAlive bool
}

// BasicAuth contains basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewRequest creates a GET request for url
func NewRequest(url string) *Request {
	return &Request{Method: nethttp.MethodGet, URL: url}
}

// WithHeader sets a header and returns the request for chaining
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithJSON marshals v as the body and sets the JSON content type
func (r *Request) WithJSON(v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return r, NewValidationError("body is not JSON encodable: "+err.Error(), "body")
	}
	r.Body = body
	return r.WithHeader(headerContentType, contentTypeJSON), nil
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = maps.Clone(r.Headers)
	c.Body = slices.Clone(r.Body)
	if r.Auth != nil {
		auth := *r.Auth
		c.Auth = &auth
	}
	return &c
}

// method returns the verb, defaulting to GET
func (r *Request) method() string {
	if r.Method == "" {
		return nethttp.MethodGet
	}
	return r.Method
}

func (r *Request) responseType() ResponseType {
	if r.ResponseType == "" {
		return ResponseJSON
	}
	return r.ResponseType
}
