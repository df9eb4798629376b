package http

import (
	"bytes"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/url"
	"time"

	"github.com/gaborage/go-relay/status"
)

// Response pairs a wire response with its parsed body.
// Treat it as immutable: transformations go through Replace.
type Response struct {
	StatusCode int
	Headers    nethttp.Header
	// Body holds the raw bytes; nil in stream mode
	Body []byte
	// Data holds the body parsed according to the request ResponseType
	Data any
	// URL is the locator that produced the response
	URL   string
	Stats Stats
}

// Stats contains request execution statistics
type Stats struct {
	Elapsed   time.Duration
	Attempts  int
	CallCount int64
	// ShortCircuited is set when a listener supplied the response
	ShortCircuited bool
	// Recovered is set when an ERROR listener substituted the response
	Recovered bool
}

// NewResponse builds a response for listeners that short-circuit or recover a
// request. Data is set to the raw body.
func NewResponse(statusCode int, headers nethttp.Header, body []byte) *Response {
	if headers == nil {
		headers = make(nethttp.Header)
	}
	return &Response{StatusCode: statusCode, Headers: headers, Body: body, Data: body}
}

// Status returns the classifier band of the status code
func (r *Response) Status() status.Band {
	return status.Classify(r.StatusCode)
}

// Succeeded reports an info, success or redirect status
func (r *Response) Succeeded() bool {
	return status.IsSuccess(r.StatusCode)
}

// Failed is the negation of Succeeded
func (r *Response) Failed() bool {
	return status.IsFailure(r.StatusCode)
}

// ClientError reports a 4xx status
func (r *Response) ClientError() bool {
	return r.Status() == status.ClientError
}

// ServerError reports a 5xx or out-of-range status
func (r *Response) ServerError() bool {
	return r.Status() == status.ServerError
}

// Replace returns a copy of the response carrying data. The receiver is unchanged.
func (r *Response) Replace(data any) *Response {
	c := *r
	c.Headers = r.Headers.Clone()
	c.Data = data
	return &c
}

// AsError converts a failed response into an HTTP *Error; nil when the response succeeded
func (r *Response) AsError() error {
	if r.Succeeded() {
		return nil
	}
	attempt := r.Stats.Attempts - 1
	if attempt < 0 {
		attempt = 0
	}
	return NewHTTPError(r.URL, attempt, r.StatusCode, r.Body)
}

// Decode unmarshals the JSON body of resp into T
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, errors.New("nil response")
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, NewUnexpectedError(resp.URL, 0, err)
	}
	return out, nil
}

// RestoreResponse rebuilds a response for req from stored parts, parsing body
// the way the engine would. Stream requests get the raw bytes as Data.
func RestoreResponse(req *Request, statusCode int, headers nethttp.Header, body []byte) (*Response, error) {
	resp := NewResponse(statusCode, headers, body)
	resp.URL = req.URL
	if req.responseType() == ResponseStream {
		return resp, nil
	}
	data, err := parseBody(req.responseType(), body)
	if err != nil {
		return nil, NewUnexpectedError(req.URL, 0, err)
	}
	resp.Data = data
	return resp, nil
}

// parseBody converts raw bytes according to mode
func parseBody(mode ResponseType, body []byte) (any, error) {
	switch mode {
	case ResponseText:
		return string(body), nil
	case ResponseBlob, ResponseBytes:
		return body, nil
	case ResponseForm:
		return url.ParseQuery(string(body))
	default:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
