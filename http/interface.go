package http

import (
	"context"
	"time"

	"github.com/gaborage/go-relay/events"
)

// Client defines the REST client interface for making HTTP requests.
// Every call runs through a fresh Handler; a returned Response may carry a
// failed status, use Response.AsError to turn it into an error.
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Head(ctx context.Context, req *Request) (*Response, error)
	Options(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
	// NewHandler prepares a handler for callers that need Cancel or State
	NewHandler(method string, req *Request) (*Handler, error)
	Bus() events.Dispatcher
}

// Config holds the client defaults merged into every request
type Config struct {
	Timeout            time.Duration
	MaxAttempts        int
	RetryOnStatusCode  bool
	RetryOnClientError bool
	KeepAlive          bool
	StatusBackoff      time.Duration
	TransportBackoff   time.Duration
	BaseURL            string
	ResponseType       ResponseType
	BasicAuth          *BasicAuth
	DefaultHeaders     map[string]string
}
