package http

import (
	"context"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gaborage/go-relay/config"
	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/logger"
)

const (
	// DefaultTimeout is the per-attempt timeout applied by the client
	DefaultTimeout = 30 * time.Second
)

// client implements the Client interface
type client struct {
	engine   *Engine
	bus      events.Dispatcher
	delegate Delegate
	logger   logger.Logger
	config   *Config
}

// NewClient creates a new REST client with default configuration
func NewClient(log logger.Logger) Client {
	return NewBuilder(log).Build()
}

// NewClientFromConfig creates a client from the client section of the
// application configuration
func NewClientFromConfig(cfg *config.ClientConfig, log logger.Logger) Client {
	return NewBuilder(log).WithConfig(cfg).Build()
}

type listenerRegistration struct {
	phase    string
	listener events.Listener
	priority int
}

// Builder provides a fluent interface for configuring the REST client
type Builder struct {
	config    *Config
	logger    logger.Logger
	transport Transport
	bus       events.Dispatcher
	delegate  Delegate
	listeners []listenerRegistration
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Builder{
		config: &Config{
			Timeout:          DefaultTimeout,
			MaxAttempts:      DefaultMaxAttempts,
			StatusBackoff:    DefaultStatusBackoff,
			TransportBackoff: DefaultTransportBackoff,
			ResponseType:     ResponseJSON,
			DefaultHeaders:   make(map[string]string),
		},
		logger: log,
	}
}

// WithConfig applies the values of an application config section
func (b *Builder) WithConfig(cfg *config.ClientConfig) *Builder {
	if cfg == nil {
		return b
	}
	b.config.Timeout = cfg.Timeout
	b.config.MaxAttempts = cfg.MaxAttempts
	b.config.RetryOnStatusCode = cfg.RetryOnStatusCode
	b.config.RetryOnClientError = cfg.RetryOnClientError
	b.config.KeepAlive = cfg.KeepAlive
	b.config.BaseURL = cfg.BaseURL
	if cfg.ResponseType != "" {
		b.config.ResponseType = ResponseType(cfg.ResponseType)
	}
	if cfg.Backoff.Status > 0 {
		b.config.StatusBackoff = cfg.Backoff.Status
	}
	if cfg.Backoff.Transport > 0 {
		b.config.TransportBackoff = cfg.Backoff.Transport
	}
	for k, v := range cfg.Headers {
		b.config.DefaultHeaders[k] = v
	}
	return b
}

// WithTimeout sets the per-attempt timeout; zero disables it
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithMaxAttempts sets the default attempt budget
func (b *Builder) WithMaxAttempts(attempts int) *Builder {
	b.config.MaxAttempts = attempts
	return b
}

// WithRetryOnStatusCode enables retries of 5xx responses
func (b *Builder) WithRetryOnStatusCode(enabled bool) *Builder {
	b.config.RetryOnStatusCode = enabled
	return b
}

// WithBackoff sets the base delays for status and transport retries
func (b *Builder) WithBackoff(status, transport time.Duration) *Builder {
	b.config.StatusBackoff = status
	b.config.TransportBackoff = transport
	return b
}

// WithBaseURL sets the prefix for relative request URLs
func (b *Builder) WithBaseURL(base string) *Builder {
	b.config.BaseURL = base
	return b
}

// WithBasicAuth sets basic authentication credentials
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.config.BasicAuth = &BasicAuth{
		Username: username,
		Password: password,
	}
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithResponseType sets the default body parsing mode
func (b *Builder) WithResponseType(t ResponseType) *Builder {
	b.config.ResponseType = t
	return b
}

// WithDelegate sets the lifecycle delegate; defaults to a LogDelegate
func (b *Builder) WithDelegate(d Delegate) *Builder {
	b.delegate = d
	return b
}

// WithBus shares an existing dispatcher between clients
func (b *Builder) WithBus(bus events.Dispatcher) *Builder {
	b.bus = bus
	return b
}

// WithListener registers a phase listener on the client bus at Build time
func (b *Builder) WithListener(phase string, l events.Listener, priority int) *Builder {
	b.listeners = append(b.listeners, listenerRegistration{phase: phase, listener: l, priority: priority})
	return b
}

// WithHTTPClient sends requests through c
func (b *Builder) WithHTTPClient(c *nethttp.Client) *Builder {
	if c != nil {
		b.transport = c
	}
	return b
}

// WithTransport sends requests through t
func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// Build creates the REST client with the configured options
func (b *Builder) Build() Client {
	bus := b.bus
	if bus == nil {
		bus = events.NewBus()
	}
	for _, reg := range b.listeners {
		bus.AddListener(reg.phase, reg.listener, reg.priority)
	}

	delegate := b.delegate
	if delegate == nil {
		delegate = NewLogDelegate(b.logger)
	}

	transport := b.transport
	if transport == nil {
		// per-attempt deadlines come from the engine
		transport = &nethttp.Client{}
	}

	return &client{
		engine: NewEngine(transport, b.logger,
			WithStatusBackoff(b.config.StatusBackoff),
			WithTransportBackoff(b.config.TransportBackoff),
		),
		bus:      bus,
		delegate: delegate,
		logger:   b.logger,
		config:   b.config,
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Head performs a HEAD request
func (c *client) Head(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodHead, req)
}

// Options performs an OPTIONS request
func (c *client) Options(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodOptions, req)
}

// Do performs an HTTP request with the specified method
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	h, err := c.NewHandler(method, req)
	if err != nil {
		return nil, err
	}
	return h.Handle(ctx)
}

// NewHandler merges the client defaults into a copy of req and wraps it in a Handler
func (c *client) NewHandler(method string, req *Request) (*Handler, error) {
	if req == nil {
		return nil, NewValidationError("request cannot be nil", "request")
	}
	return NewHandler(c.prepare(method, req), HandlerOptions{
		Bus:      c.bus,
		Delegate: c.delegate,
		Engine:   c.engine,
		Logger:   c.logger,
	})
}

// Bus returns the dispatcher shared by every request of this client
func (c *client) Bus() events.Dispatcher {
	return c.bus
}

// prepare applies the client defaults to fields the request left empty
func (c *client) prepare(method string, req *Request) *Request {
	r := req.Clone()
	if method != "" {
		r.Method = method
	}
	r.URL = c.resolveURL(r.URL)

	c.applyHeaders(r)
	if r.Auth == nil && c.config.BasicAuth != nil {
		auth := *c.config.BasicAuth
		r.Auth = &auth
	}

	if r.Timeout == 0 && !r.NoTimeout {
		r.Timeout = c.config.Timeout
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = c.config.MaxAttempts
	}
	r.RetryOnStatusCode = r.RetryOnStatusCode || c.config.RetryOnStatusCode
	r.RetryOnClientError = r.RetryOnClientError || c.config.RetryOnClientError
	r.KeepAlive = r.KeepAlive || c.config.KeepAlive
	if r.ResponseType == "" {
		r.ResponseType = c.config.ResponseType
	}
	return r
}

// applyHeaders adds default headers the request does not set itself
func (c *client) applyHeaders(r *Request) {
	set := make(map[string]bool, len(r.Headers))
	for key := range r.Headers {
		set[nethttp.CanonicalHeaderKey(key)] = true
	}

	for key, value := range c.config.DefaultHeaders {
		if !set[nethttp.CanonicalHeaderKey(key)] {
			r.WithHeader(key, value)
			set[nethttp.CanonicalHeaderKey(key)] = true
		}
	}

	// Set Content-Type if not already set and body is present
	if len(r.Body) > 0 && !set[headerContentType] {
		r.WithHeader(headerContentType, contentTypeJSON)
	}
}

// resolveURL prefixes relative URLs with the base URL
func (c *client) resolveURL(raw string) string {
	if c.config.BaseURL == "" || raw == "" {
		return raw
	}
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
}
