package observability

import "errors"

// ErrNilConfig is returned when Validate is called on a nil Config pointer.
var ErrNilConfig = errors.New("observability: config is nil")

// ErrMissingServiceName is returned when observability is enabled but no service name is configured.
var ErrMissingServiceName = errors.New("observability: service name is required when observability is enabled")

// ErrInvalidSampleRate is returned when the trace sample rate is outside the valid range [0.0, 1.0].
var ErrInvalidSampleRate = errors.New("observability: trace sample rate must be between 0.0 and 1.0")

// ErrInvalidExporter is returned for an exporter other than stdout, otlp-http or otlp-grpc.
var ErrInvalidExporter = errors.New("observability: exporter must be one of 'stdout', 'otlp-http' or 'otlp-grpc'")

// ErrMissingEndpoint is returned when an OTLP exporter has no endpoint.
var ErrMissingEndpoint = errors.New("observability: endpoint is required for OTLP exporters")

// ErrInvalidEndpointFormat is returned when the endpoint format doesn't match the exporter.
// OTLP exporters expect "host:port" without a scheme.
var ErrInvalidEndpointFormat = errors.New("observability: invalid endpoint format for exporter")
