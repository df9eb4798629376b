package http

import (
	"context"
	"sync/atomic"
)

// Token is a one-shot cooperative cancellation signal shared by a Handler and
// the Engine attempt it is currently running. Once tripped it never resets.
type Token struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	tripped atomic.Bool
}

// NewToken creates an untripped token
func NewToken() *Token {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel trips the token. Calls after the first are no-ops.
func (t *Token) Cancel() bool {
	return t.CancelWithCause(ErrCancelled)
}

// CancelWithCause trips the token recording cause, reporting whether this call
// was the one that tripped it.
func (t *Token) CancelWithCause(cause error) bool {
	if !t.tripped.CompareAndSwap(false, true) {
		return false
	}
	if cause == nil {
		cause = ErrCancelled
	}
	t.cancel(cause)
	return true
}

// Cancelled reports whether the token has been tripped
func (t *Token) Cancelled() bool {
	return t.tripped.Load()
}

// Done is closed when the token trips
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Context returns a context that is cancelled when the token trips
func (t *Token) Context() context.Context {
	return t.ctx
}

// Cause returns the error the token was tripped with, or nil
func (t *Token) Cause() error {
	if !t.Cancelled() {
		return nil
	}
	return context.Cause(t.ctx)
}

// Bind derives a context from parent that is also cancelled when the token
// trips. Values of parent stay visible. The returned cancel func must be called
// to release the link.
func (t *Token) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(t.ctx, func() {
		cancel(context.Cause(t.ctx))
	})
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
