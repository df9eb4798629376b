package http

import (
	"time"

	"github.com/gaborage/go-relay/events"
)

// Lifecycle phase names, in dispatch order
const (
	PhaseRequest    = "request"
	PhaseBeforeSend = "before_send"
	PhaseResponse   = "response"
	PhaseError      = "error"
	PhaseTerminate  = "terminate"
)

// PhaseEvent is implemented by every lifecycle event
type PhaseEvent interface {
	events.Event
	Phase() string
	HandlerID() string
	// Request returns a copy of the request as it stands in this phase
	Request() *Request
}

type phaseBase struct {
	events.Base
	handlerID string
	req       *Request
}

func (b *phaseBase) HandlerID() string { return b.handlerID }

func (b *phaseBase) Request() *Request { return b.req.Clone() }

// mutableRequest is the URL and header surface shared by the phases that run
// before the network call
type mutableRequest struct {
	phaseBase
	resp *Response
}

// SetURL rewrites the request target
func (m *mutableRequest) SetURL(url string) {
	m.req.URL = url
}

// SetHeader sets a request header
func (m *mutableRequest) SetHeader(key, value string) {
	if m.req.Headers == nil {
		m.req.Headers = make(map[string]string)
	}
	m.req.Headers[key] = value
}

// DeleteHeader removes a request header
func (m *mutableRequest) DeleteHeader(key string) {
	delete(m.req.Headers, key)
}

// Header returns the current value of a request header
func (m *mutableRequest) Header(key string) string {
	return m.req.Headers[key]
}

// Respond supplies a response, skipping the network call.
// A nil response is ignored.
func (m *mutableRequest) Respond(resp *Response) {
	if resp != nil {
		m.resp = resp
	}
}

// Response returns the short-circuit response, if a listener supplied one
func (m *mutableRequest) Response() *Response {
	return m.resp
}

// RequestEvent is dispatched first. Listeners may rewrite the target, change
// headers or answer the request from elsewhere (a cache, a fixture).
type RequestEvent struct {
	mutableRequest
}

// Phase returns PhaseRequest
func (*RequestEvent) Phase() string { return PhaseRequest }

// BeforeSendEvent is the last chance to change the request before it is sent.
type BeforeSendEvent struct {
	mutableRequest
}

// Phase returns PhaseBeforeSend
func (*BeforeSendEvent) Phase() string { return PhaseBeforeSend }

// SetTimeout changes the per-attempt timeout
func (e *BeforeSendEvent) SetTimeout(d time.Duration) {
	if d >= 0 {
		e.req.Timeout = d
	}
}

// ResponseEvent carries the response before it is returned. Listeners may
// replace it or prevent the delegate from being told about it.
type ResponseEvent struct {
	phaseBase
	resp      *Response
	prevented bool
}

// Phase returns PhaseResponse
func (*ResponseEvent) Phase() string { return PhaseResponse }

// Response returns the current response
func (e *ResponseEvent) Response() *Response { return e.resp }

// Replace swaps the response returned to the caller. A nil response is ignored.
func (e *ResponseEvent) Replace(resp *Response) {
	if resp != nil {
		e.resp = resp
	}
}

// PreventDefault suppresses the delegate success/failure notification
func (e *ResponseEvent) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether PreventDefault was called
func (e *ResponseEvent) DefaultPrevented() bool { return e.prevented }

// ErrorEvent carries an engine failure. Attaching a response recovers it.
type ErrorEvent struct {
	phaseBase
	err       error
	resp      *Response
	prevented bool
}

// Phase returns PhaseError
func (*ErrorEvent) Phase() string { return PhaseError }

// Err returns the failure being handled
func (e *ErrorEvent) Err() error { return e.err }

// Recover attaches a response; the request then resolves with it.
// A nil response is ignored.
func (e *ErrorEvent) Recover(resp *Response) {
	if resp != nil {
		e.resp = resp
	}
}

// Recovered reports whether a listener attached a response
func (e *ErrorEvent) Recovered() bool { return e.resp != nil }

// Response returns the recovery response, if any
func (e *ErrorEvent) Response() *Response { return e.resp }

// PreventDefault suppresses the delegate Errored notification
func (e *ErrorEvent) PreventDefault() { e.prevented = true }

// DefaultPrevented reports whether PreventDefault was called
func (e *ErrorEvent) DefaultPrevented() bool { return e.prevented }

// TerminateEvent is dispatched once at the end of every Handle call.
type TerminateEvent struct {
	phaseBase
	resp *Response
	err  error
}

// Phase returns PhaseTerminate
func (*TerminateEvent) Phase() string { return PhaseTerminate }

// Response returns the final response, nil on failure
func (e *TerminateEvent) Response() *Response { return e.resp }

// Err returns the final error, nil on success
func (e *TerminateEvent) Err() error { return e.err }
