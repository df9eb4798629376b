package interceptors

import (
	"context"
	"encoding/base64"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
)

const headerAuthorization = "Authorization"

// TokenSource returns the credential for a request. Errors abort the request.
type TokenSource func(ctx context.Context) (string, error)

// Auth sets a credential header on outgoing requests. A header already present
// on the request wins, as does Request.Auth for the basic scheme.
type Auth struct {
	header string
	scheme string
	source TokenSource
}

var _ Interceptor = (*Auth)(nil)

// NewBearerAuth sends "Authorization: Bearer <token>"
func NewBearerAuth(token string) *Auth {
	return NewTokenAuth(func(context.Context) (string, error) { return token, nil })
}

// NewTokenAuth sends a bearer token obtained from source on every request
func NewTokenAuth(source TokenSource) *Auth {
	return &Auth{header: headerAuthorization, scheme: "Bearer", source: source}
}

// NewBasicAuth sends HTTP basic credentials
func NewBasicAuth(username, password string) *Auth {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return &Auth{
		header: headerAuthorization,
		scheme: "Basic",
		source: func(context.Context) (string, error) { return encoded, nil },
	}
}

// NewHeaderAuth sends a static value under header, e.g. an API key
func NewHeaderAuth(header, value string) *Auth {
	return &Auth{
		header: header,
		source: func(context.Context) (string, error) { return value, nil },
	}
}

// Register adds the BEFORE_SEND listener
func (a *Auth) Register(bus events.Dispatcher) func() {
	return bus.AddListener(http.PhaseBeforeSend, on(a.apply), PriorityAuth)
}

func (a *Auth) apply(ctx context.Context, e *http.BeforeSendEvent) error {
	if e.Header(a.header) != "" {
		return nil
	}
	if a.header == headerAuthorization && e.Request().Auth != nil {
		return nil
	}

	value, err := a.source(ctx)
	if err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	if a.scheme != "" {
		value = a.scheme + " " + value
	}
	e.SetHeader(a.header, value)
	return nil
}
