package http

import (
	"github.com/gaborage/go-relay/logger"
)

// Delegate receives read-only lifecycle notifications from a Handler.
// Calls are made inline; implementations must not block.
type Delegate interface {
	Prepare(req *Request)
	Started(req *Request)
	Finished(req *Request)
	Errored(req *Request, err error)
	SucceededWithResponse(req *Request, resp *Response)
	FailedWithResponse(req *Request, resp *Response)
	PreventedHandling(req *Request, resp *Response)
}

// NopDelegate ignores every notification
type NopDelegate struct{}

var _ Delegate = NopDelegate{}

func (NopDelegate) Prepare(*Request)                          {}
func (NopDelegate) Started(*Request)                          {}
func (NopDelegate) Finished(*Request)                         {}
func (NopDelegate) Errored(*Request, error)                   {}
func (NopDelegate) SucceededWithResponse(*Request, *Response) {}
func (NopDelegate) FailedWithResponse(*Request, *Response)    {}
func (NopDelegate) PreventedHandling(*Request, *Response)     {}

// LogDelegate writes each notification as a structured log entry
type LogDelegate struct {
	logger logger.Logger
}

var _ Delegate = (*LogDelegate)(nil)

// NewLogDelegate creates a delegate logging through log
func NewLogDelegate(log logger.Logger) *LogDelegate {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogDelegate{logger: log.WithFields(map[string]any{"component": "delegate"})}
}

func (d *LogDelegate) Prepare(req *Request) {
	d.logger.Debug().Str("method", req.method()).Str("url", req.URL).Msg("request prepared")
}

func (d *LogDelegate) Started(req *Request) {
	d.logger.Debug().Str("method", req.method()).Str("url", req.URL).Msg("request started")
}

func (d *LogDelegate) Finished(req *Request) {
	d.logger.Debug().Str("method", req.method()).Str("url", req.URL).Msg("request finished")
}

func (d *LogDelegate) Errored(req *Request, err error) {
	d.logger.Error().Err(err).Str("method", req.method()).Str("url", req.URL).Msg("request errored")
}

func (d *LogDelegate) SucceededWithResponse(req *Request, resp *Response) {
	d.logger.Info().
		Str("method", req.method()).
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.Elapsed).
		Msg("request succeeded")
}

func (d *LogDelegate) FailedWithResponse(req *Request, resp *Response) {
	d.logger.Warn().
		Str("method", req.method()).
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Str("band", resp.Status().String()).
		Msg("request failed with response")
}

func (d *LogDelegate) PreventedHandling(req *Request, resp *Response) {
	d.logger.Debug().Str("url", req.URL).Int("status", resp.StatusCode).Msg("response handling prevented")
}
