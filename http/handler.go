package http

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/logger"
)

// State is the lifecycle position of a Handler
type State int32

const (
	StateCreated State = iota
	StateRequest
	StateBeforeSend
	StateFetching
	StateResponse
	StateError
	StateTerminated
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRequest:
		return "request"
	case StateBeforeSend:
		return "before_send"
	case StateFetching:
		return "fetching"
	case StateResponse:
		return "response"
	case StateError:
		return "error"
	case StateTerminated:
		return "terminated"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// HandlerOptions holds the collaborators of a Handler. Delegate and Engine are required.
type HandlerOptions struct {
	Bus      events.Dispatcher
	Delegate Delegate
	Engine   *Engine
	Logger   logger.Logger
}

// Handler drives one logical request through the REQUEST, BEFORE_SEND,
// RESPONSE, ERROR and TERMINATE phases. Create one per request; it is not
// reusable.
type Handler struct {
	id       string
	req      *Request
	bus      events.Dispatcher
	delegate Delegate
	engine   *Engine
	logger   logger.Logger
	token    *Token

	state   atomic.Int32
	started atomic.Bool
	settled atomic.Bool
}

// NewHandler validates req and creates a handler owning a copy of it
func NewHandler(req *Request, opts HandlerOptions) (*Handler, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if opts.Delegate == nil {
		return nil, NewValidationError("delegate is required", "delegate")
	}
	if opts.Engine == nil {
		return nil, NewValidationError("engine is required", "engine")
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	id := uuid.NewString()
	return &Handler{
		id:       id,
		req:      req.Clone(),
		bus:      opts.Bus,
		delegate: opts.Delegate,
		engine:   opts.Engine,
		logger:   opts.Logger.WithFields(map[string]any{"handler_id": id}),
		token:    NewToken(),
	}, nil
}

// ID returns the unique handler identifier passed to every phase event
func (h *Handler) ID() string {
	return h.id
}

// State returns the current lifecycle state
func (h *Handler) State() State {
	return State(h.state.Load())
}

// Request returns a copy of the request in its current form
func (h *Handler) Request() *Request {
	return h.req.Clone()
}

// Cancel aborts the request. The in-flight attempt is aborted and Handle
// returns a cancellation error. Calling Cancel again, or after Handle has
// returned, does nothing.
func (h *Handler) Cancel() {
	if h.settled.Load() {
		return
	}
	if h.token.Cancel() {
		h.logger.Debug().Str("state", h.State().String()).Msg("request cancelled")
	}
}

// IsCancelled reports whether the request was cancelled before it settled
func (h *Handler) IsCancelled() bool {
	return h.token.Cancelled()
}

// Handle runs the lifecycle. The returned response may carry a failed status;
// the error is set for timeouts, transport failures, cancellation, unexpected
// failures and listener errors. TERMINATE is dispatched on every path.
func (h *Handler) Handle(ctx context.Context) (resp *Response, err error) {
	if !h.started.CompareAndSwap(false, true) {
		return nil, NewValidationError("handler has already been used", "handler")
	}

	if h.req.KeepAlive {
		ctx = context.WithoutCancel(ctx)
	} else {
		stop := context.AfterFunc(ctx, func() {
			if !h.settled.Load() {
				h.token.CancelWithCause(context.Cause(ctx))
			}
		})
		defer stop()
	}

	defer func() {
		h.settled.Store(true)
		h.terminate(ctx, resp, err)
	}()

	return h.run(ctx)
}

func (h *Handler) run(ctx context.Context) (*Response, error) {
	h.delegate.Prepare(h.req.Clone())

	resp, err := h.requestPhase(ctx)
	if err != nil {
		return nil, err
	}

	if resp == nil {
		resp, err = h.beforeSendPhase(ctx)
		if err != nil {
			return nil, err
		}
	}

	if resp != nil {
		// Listener responses may be shared, so flag a copy
		answered := *resp
		answered.Stats.ShortCircuited = true
		resp = &answered
		h.logger.Debug().Str("url", h.req.URL).Msg("request answered by listener")
	} else {
		resp, err = h.fetch(ctx)
		if err != nil {
			if IsCancelled(err) {
				return nil, err
			}
			return h.errorPhase(ctx, err)
		}
	}

	return h.responsePhase(ctx, resp)
}

// checkpoint returns a cancellation error once the token has tripped
func (h *Handler) checkpoint(ctx context.Context) error {
	if cancelled(ctx, h.token) {
		return NewCancelledError(h.req.URL, 0, h.token.Cause())
	}
	return nil
}

func (h *Handler) requestPhase(ctx context.Context) (*Response, error) {
	if err := h.checkpoint(ctx); err != nil {
		return nil, err
	}
	h.setState(StateRequest)

	ev := &RequestEvent{mutableRequest{phaseBase: h.base()}}
	ev, err := dispatch(ctx, h, ev)
	if err != nil {
		return nil, err
	}
	return ev.Response(), nil
}

func (h *Handler) beforeSendPhase(ctx context.Context) (*Response, error) {
	if err := h.checkpoint(ctx); err != nil {
		return nil, err
	}
	h.setState(StateBeforeSend)

	ev := &BeforeSendEvent{mutableRequest{phaseBase: h.base()}}
	ev, err := dispatch(ctx, h, ev)
	if err != nil {
		return nil, err
	}
	return ev.Response(), nil
}

func (h *Handler) fetch(ctx context.Context) (*Response, error) {
	if err := h.checkpoint(ctx); err != nil {
		return nil, err
	}
	if err := h.req.Validate(); err != nil {
		return nil, err
	}
	h.setState(StateFetching)

	h.delegate.Started(h.req.Clone())
	resp, err := h.engine.Execute(ctx, h.token, h.req)
	h.delegate.Finished(h.req.Clone())
	return resp, err
}

func (h *Handler) errorPhase(ctx context.Context, cause error) (*Response, error) {
	if err := h.checkpoint(ctx); err != nil {
		return nil, err
	}
	h.setState(StateError)

	ev := &ErrorEvent{phaseBase: h.base(), err: cause}
	ev, err := dispatch(ctx, h, ev)
	if err != nil {
		return nil, err
	}

	if ev.Recovered() {
		h.logger.Debug().Err(cause).Msg("error recovered by listener")
		recovered := *ev.Response()
		recovered.Stats.Recovered = true
		return h.responsePhase(ctx, &recovered)
	}
	if !ev.DefaultPrevented() {
		h.delegate.Errored(h.req.Clone(), cause)
	}
	return nil, cause
}

func (h *Handler) responsePhase(ctx context.Context, resp *Response) (*Response, error) {
	if err := h.checkpoint(ctx); err != nil {
		discardStream(resp, nil)
		return nil, err
	}
	h.setState(StateResponse)

	ev := &ResponseEvent{phaseBase: h.base(), resp: resp}
	ev, err := dispatch(ctx, h, ev)
	if err != nil {
		discardStream(ev.Response(), resp)
		discardStream(resp, nil)
		return nil, err
	}
	final := ev.Response()
	discardStream(resp, final)
	resp = final

	if err := h.checkpoint(ctx); err != nil {
		discardStream(resp, nil)
		return nil, err
	}

	switch {
	case ev.DefaultPrevented():
		h.delegate.PreventedHandling(h.req.Clone(), resp)
	case resp.Succeeded():
		h.delegate.SucceededWithResponse(h.req.Clone(), resp)
	default:
		h.delegate.FailedWithResponse(h.req.Clone(), resp)
	}
	return resp, nil
}

// streamOf returns the open body of a stream mode response
func streamOf(resp *Response) io.ReadCloser {
	if resp == nil {
		return nil
	}
	rc, _ := resp.Data.(io.ReadCloser)
	return rc
}

// discardStream closes the stream held by resp unless keep still returns it.
// The engine releases the attempt context only when that stream is closed.
func discardStream(resp, keep *Response) {
	rc := streamOf(resp)
	if rc == nil || rc == streamOf(keep) {
		return
	}
	_ = rc.Close()
}

// terminate dispatches TERMINATE. Its listeners cannot change the outcome, so
// their errors are only logged.
func (h *Handler) terminate(ctx context.Context, resp *Response, err error) {
	if h.token.Cancelled() {
		h.setState(StateCancelled)
	} else {
		h.setState(StateTerminated)
	}

	ev := &TerminateEvent{phaseBase: h.base(), resp: resp, err: err}
	if _, dispatchErr := h.bus.Dispatch(context.WithoutCancel(ctx), PhaseTerminate, ev); dispatchErr != nil {
		h.logger.Warn().Err(dispatchErr).Msg("terminate listener failed")
	}
}

func (h *Handler) base() phaseBase {
	return phaseBase{handlerID: h.id, req: h.req}
}

func (h *Handler) setState(s State) {
	h.state.Store(int32(s))
}

// dispatch runs the phase listeners and returns the event handed back by the
// dispatcher, falling back to e when it returns something else. Listeners see
// a context that is cancelled with the handler token; a listener failing
// because of that cancellation yields a cancellation error.
func dispatch[E PhaseEvent](ctx context.Context, h *Handler, e E) (E, error) {
	bound, release := h.token.Bind(ctx)
	defer release()

	out, err := h.bus.Dispatch(bound, e.Phase(), e)
	if err != nil {
		if cancelErr := h.checkpoint(ctx); cancelErr != nil {
			return e, cancelErr
		}
		return e, NewInterceptorError(e.Phase(), err)
	}
	if typed, ok := out.(E); ok {
		return typed, nil
	}
	return e, nil
}
