package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaborage/go-relay/logger"
	"github.com/gaborage/go-relay/status"
)

const (
	// DefaultMaxAttempts is used when a request asks for fewer than two attempts
	DefaultMaxAttempts = 3

	// DefaultStatusBackoff is the base delay before retrying a retryable status
	DefaultStatusBackoff = 500 * time.Millisecond

	// DefaultTransportBackoff is the base delay before retrying a transport failure
	DefaultTransportBackoff = 1000 * time.Millisecond
)

// Transport sends one HTTP request and returns one HTTP response.
// *net/http.Client satisfies it.
type Transport interface {
	Do(req *nethttp.Request) (*nethttp.Response, error)
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithStatusBackoff sets the base delay for retryable status codes
func WithStatusBackoff(d time.Duration) EngineOption {
	return func(e *Engine) { e.statusBackoff = d }
}

// WithTransportBackoff sets the base delay for transport failures
func WithTransportBackoff(d time.Duration) EngineOption {
	return func(e *Engine) { e.transportBackoff = d }
}

// Engine performs the network exchange for a request, retrying according to
// the request description. It is safe for concurrent use.
type Engine struct {
	transport        Transport
	logger           logger.Logger
	statusBackoff    time.Duration
	transportBackoff time.Duration
	callCount        atomic.Int64
}

// NewEngine creates an engine on top of t. A nil transport uses a
// net/http.Client without a global timeout.
func NewEngine(t Transport, log logger.Logger, opts ...EngineOption) *Engine {
	if t == nil {
		t = &nethttp.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		transport:        t,
		logger:           log,
		statusBackoff:    DefaultStatusBackoff,
		transportBackoff: DefaultTransportBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryableStatus
	outcomeTerminalStatus
	outcomeTimeout
	outcomeTransportFailure
	outcomeUnexpectedFailure
	outcomeCancelled
)

type attemptResult struct {
	kind outcome
	resp *Response
	err  error
}

// Execute runs the attempt loop for req under token. Wire responses are
// returned without an error whatever their status; the error is reserved for
// timeouts, transport failures, cancellation and unexpected failures.
func (e *Engine) Execute(ctx context.Context, token *Token, req *Request) (*Response, error) {
	if token == nil {
		token = NewToken()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.KeepAlive {
		ctx = context.WithoutCancel(ctx)
	} else {
		stop := context.AfterFunc(ctx, func() {
			token.CancelWithCause(context.Cause(ctx))
		})
		defer stop()
	}

	attempts, timeout := attemptPlan(req)
	start := time.Now()
	callCount := e.callCount.Add(1)
	stats := func(attempt int) Stats {
		return Stats{Elapsed: time.Since(start), Attempts: attempt + 1, CallCount: callCount}
	}
	defer func() {
		logger.AddHTTPElapsed(ctx, time.Since(start).Nanoseconds())
	}()

	for attempt := 0; attempt < attempts; attempt++ {
		if cancelled(ctx, token) {
			return nil, NewCancelledError(req.URL, attempt, token.Cause())
		}
		last := attempt == attempts-1

		logger.IncrementHTTPCounter(ctx)
		res := e.attempt(ctx, token, req, timeout, last)

		switch res.kind {
		case outcomeSuccess, outcomeTerminalStatus:
			res.resp.Stats = stats(attempt)
			e.logResponse(req, res.resp)
			return res.resp, nil

		case outcomeRetryableStatus:
			e.logger.Warn().
				Str("url", req.URL).
				Int("status", res.resp.StatusCode).
				Int("attempt", attempt+1).
				Int("max_attempts", attempts).
				Msg("retrying after failed status")
			if err := e.wait(ctx, token, e.statusBackoff*time.Duration(attempt+1)); err != nil {
				return nil, NewCancelledError(req.URL, attempt, token.Cause())
			}

		case outcomeTimeout:
			if last {
				e.logger.Error().Str("url", req.URL).Int("attempts", attempts).Dur("timeout", timeout).Msg("request timed out")
				return nil, NewTimeoutError(req.URL, attempt, timeout)
			}
			e.logger.Warn().Str("url", req.URL).Int("attempt", attempt+1).Dur("timeout", timeout).Msg("attempt timed out, retrying")

		case outcomeTransportFailure:
			if last {
				e.logger.Error().Err(res.err).Str("url", req.URL).Int("attempts", attempts).Msg("request failed")
				return nil, NewNetworkError(req.URL, attempt, res.err)
			}
			e.logger.Warn().Err(res.err).Str("url", req.URL).Int("attempt", attempt+1).Msg("transport failure, retrying")
			if err := e.wait(ctx, token, e.transportBackoff*time.Duration(attempt+1)); err != nil {
				return nil, NewCancelledError(req.URL, attempt, token.Cause())
			}

		case outcomeCancelled:
			return nil, NewCancelledError(req.URL, attempt, token.Cause())

		default:
			e.logger.Error().Err(res.err).Str("url", req.URL).Msg("unexpected request failure")
			return nil, NewUnexpectedError(req.URL, attempt, res.err)
		}
	}

	// attempts is never below one, so the loop always returns
	return nil, NewUnexpectedError(req.URL, attempts-1, errors.New("attempt loop exhausted"))
}

// attemptPlan resolves the attempt count and per-attempt timeout
func attemptPlan(req *Request) (int, time.Duration) {
	if req.KeepAlive {
		return 1, 0
	}
	attempts := req.MaxAttempts
	if attempts < 2 {
		attempts = DefaultMaxAttempts
	}
	return attempts, req.Timeout
}

// cancelled reports whether the token is tripped, tripping it first when the
// caller context is done so the decision does not race the AfterFunc link.
func cancelled(ctx context.Context, token *Token) bool {
	if ctx.Err() != nil {
		token.CancelWithCause(context.Cause(ctx))
	}
	return token.Cancelled()
}

func (e *Engine) attempt(ctx context.Context, token *Token, req *Request, timeout time.Duration, last bool) attemptResult {
	attemptCtx, release := token.Bind(ctx)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		attemptCtx, cancelTimeout = context.WithTimeout(attemptCtx, timeout)
		unbind := release
		release = func() {
			cancelTimeout()
			unbind()
		}
	}

	httpReq, err := buildRequest(attemptCtx, req)
	if err != nil {
		release()
		return attemptResult{kind: outcomeUnexpectedFailure, err: err}
	}

	e.logger.Debug().
		Str("direction", "outbound").
		Str("method", httpReq.Method).
		Str("url", req.URL).
		Interface("headers", req.Headers).
		Msg("sending request")

	httpResp, err := e.transport.Do(httpReq)
	if err != nil {
		res := classifyFailure(ctx, attemptCtx, token, err)
		release()
		return res
	}

	kind := statusOutcome(req, httpResp.StatusCode, last)
	mode := req.responseType()

	if mode == ResponseStream && kind != outcomeRetryableStatus {
		return attemptResult{kind: kind, resp: &Response{
			StatusCode: httpResp.StatusCode,
			Headers:    httpResp.Header,
			URL:        req.URL,
			Data:       &releasingBody{ReadCloser: httpResp.Body, release: release},
		}}
	}

	body, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		res := classifyFailure(ctx, attemptCtx, token, err)
		release()
		return res
	}
	release()

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		URL:        req.URL,
	}
	if kind == outcomeRetryableStatus {
		return attemptResult{kind: kind, resp: resp}
	}

	data, err := parseBody(mode, body)
	if err != nil {
		if status.IsSuccess(resp.StatusCode) {
			return attemptResult{kind: outcomeUnexpectedFailure, err: err}
		}
		data = string(body)
	}
	resp.Data = data
	return attemptResult{kind: kind, resp: resp}
}

// statusOutcome maps a wire status to the retry decision for this attempt
func statusOutcome(req *Request, code int, last bool) outcome {
	switch status.Classify(code) {
	case status.Info, status.Success, status.Redirect:
		return outcomeSuccess
	case status.ClientError:
		if req.RetryOnClientError && !last {
			return outcomeRetryableStatus
		}
	default:
		if req.RetryOnStatusCode && !last {
			return outcomeRetryableStatus
		}
	}
	return outcomeTerminalStatus
}

// classifyFailure decides between cancellation, timeout and transport failure.
// It must run before the attempt context is released.
func classifyFailure(ctx, attemptCtx context.Context, token *Token, err error) attemptResult {
	switch {
	case cancelled(ctx, token):
		return attemptResult{kind: outcomeCancelled, err: err}
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded), isTimeout(err):
		return attemptResult{kind: outcomeTimeout, err: err}
	default:
		return attemptResult{kind: outcomeTransportFailure, err: err}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// wait sleeps for d unless the token trips or the caller context ends first
func (e *Engine) wait(ctx context.Context, token *Token, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-token.Done():
		return ErrCancelled
	case <-ctx.Done():
		token.CancelWithCause(context.Cause(ctx))
		return ErrCancelled
	}
}

// buildRequest constructs the wire request for one attempt. Bodies are
// re-read from the description on every attempt.
func buildRequest(ctx context.Context, req *Request) (*nethttp.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, req.method(), req.URL, body)
	if err != nil {
		return nil, err
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Auth != nil {
		httpReq.SetBasicAuth(req.Auth.Username, req.Auth.Password)
	}
	return httpReq, nil
}

func (e *Engine) logResponse(req *Request, resp *Response) {
	logEvent := e.logger.Debug().
		Str("direction", "inbound").
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Str("band", resp.Status().String()).
		Int("attempts", resp.Stats.Attempts).
		Dur("elapsed", resp.Stats.Elapsed).
		Int64("call_count", resp.Stats.CallCount)

	if len(resp.Body) > 0 {
		logEvent.Bytes("body", resp.Body)
	}

	logEvent.Msg("received response")
}

// releasingBody frees the attempt context once a streamed body is closed
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
