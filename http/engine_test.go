package http

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-relay/logger"
)

const (
	testURL          = "http://example.com/resource"
	testJSONBody     = `{"ok":true}`
	testShortTimeout = 20 * time.Millisecond
)

// roundTripperFunc adapts a function to the Transport interface
type roundTripperFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripperFunc) Do(r *nethttp.Request) (*nethttp.Response, error) {
	return f(r)
}

func stubResponse(code int, body string) *nethttp.Response {
	return &nethttp.Response{
		StatusCode: code,
		Header:     make(nethttp.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// statusTransport answers every call with code and counts the calls
func statusTransport(calls *atomic.Int32, code int, body string) roundTripperFunc {
	return func(*nethttp.Request) (*nethttp.Response, error) {
		calls.Add(1)
		return stubResponse(code, body), nil
	}
}

// blockingTransport waits until the attempt context ends
func blockingTransport(calls *atomic.Int32) roundTripperFunc {
	return func(r *nethttp.Request) (*nethttp.Response, error) {
		calls.Add(1)
		<-r.Context().Done()
		return nil, r.Context().Err()
	}
}

func newTestEngine(t Transport) *Engine {
	return NewEngine(t, logger.NewNop(),
		WithStatusBackoff(time.Millisecond),
		WithTransportBackoff(time.Millisecond),
	)
}

func TestEngineExecuteSuccess(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, nethttp.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testJSONBody))
	}))
	defer server.Close()

	engine := newTestEngine(server.Client())
	resp, err := engine.Execute(context.Background(), NewToken(), NewRequest(server.URL))

	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, resp.Data)
	assert.Equal(t, []byte(testJSONBody), resp.Body)
	assert.Equal(t, server.URL, resp.URL)
	assert.Equal(t, 1, resp.Stats.Attempts)
	assert.Positive(t, resp.Stats.CallCount)
	assert.True(t, resp.Succeeded())
}

func TestEngineStatusRetries(t *testing.T) {
	tests := []struct {
		name          string
		code          int
		maxAttempts   int
		retryStatus   bool
		retryClient   bool
		expectedCalls int32
	}{
		{name: "server error retried when enabled", code: 500, maxAttempts: 3, retryStatus: true, expectedCalls: 3},
		{name: "server error not retried by default", code: 500, maxAttempts: 3, expectedCalls: 1},
		{name: "client error never retried by status flag", code: 404, maxAttempts: 3, retryStatus: true, expectedCalls: 1},
		{name: "client error retried when opted in", code: 429, maxAttempts: 3, retryClient: true, expectedCalls: 3},
		{name: "single attempt raised to default", code: 503, maxAttempts: 1, retryStatus: true, expectedCalls: DefaultMaxAttempts},
		{name: "zero attempts raised to default", code: 503, maxAttempts: 0, retryStatus: true, expectedCalls: DefaultMaxAttempts},
		{name: "larger budget honoured", code: 502, maxAttempts: 5, retryStatus: true, expectedCalls: 5},
		{name: "out of range status treated as server error", code: 600, maxAttempts: 2, retryStatus: true, expectedCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			engine := newTestEngine(statusTransport(&calls, tt.code, `{"error":"boom"}`))

			req := NewRequest(testURL)
			req.MaxAttempts = tt.maxAttempts
			req.RetryOnStatusCode = tt.retryStatus
			req.RetryOnClientError = tt.retryClient

			resp, err := engine.Execute(context.Background(), NewToken(), req)

			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, tt.expectedCalls, calls.Load())
			assert.Equal(t, int(tt.expectedCalls), resp.Stats.Attempts)
			assert.True(t, resp.Failed())

			httpErr := resp.AsError()
			require.Error(t, httpErr)
			assert.True(t, IsHTTPStatusError(httpErr, tt.code))
		})
	}
}

func TestEngineRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	engine := newTestEngine(roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		if calls.Add(1) < 3 {
			return stubResponse(503, ""), nil
		}
		return stubResponse(200, testJSONBody), nil
	}))

	req := NewRequest(testURL)
	req.RetryOnStatusCode = true

	resp, err := engine.Execute(context.Background(), NewToken(), req)

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, resp.Stats.Attempts)
}

func TestEngineTimeout(t *testing.T) {
	t.Run("last attempt timeout is reported", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(blockingTransport(&calls))

		req := NewRequest(testURL)
		req.Timeout = testShortTimeout

		resp, err := engine.Execute(context.Background(), NewToken(), req)

		assert.Nil(t, resp)
		require.Error(t, err)
		assert.True(t, IsTimeout(err))
		assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())

		var relayErr *Error
		require.ErrorAs(t, err, &relayErr)
		assert.Equal(t, DefaultMaxAttempts-1, relayErr.Attempt)
		assert.Equal(t, testShortTimeout, relayErr.Timeout)
		assert.Equal(t, testURL, relayErr.URL)
		assert.False(t, relayErr.HasResponse())
	})

	t.Run("timeout is retried immediately", func(t *testing.T) {
		var calls atomic.Int32
		engine := NewEngine(roundTripperFunc(func(r *nethttp.Request) (*nethttp.Response, error) {
			if calls.Add(1) == 1 {
				<-r.Context().Done()
				return nil, r.Context().Err()
			}
			return stubResponse(200, testJSONBody), nil
		}), logger.NewNop(), WithTransportBackoff(time.Hour), WithStatusBackoff(time.Hour))

		req := NewRequest(testURL)
		req.Timeout = testShortTimeout
		req.MaxAttempts = 2

		resp, err := engine.Execute(context.Background(), NewToken(), req)

		require.NoError(t, err)
		assert.Equal(t, 2, resp.Stats.Attempts)
		assert.Less(t, resp.Stats.Elapsed, time.Minute)
	})
}

func TestEngineTransportFailure(t *testing.T) {
	refused := errors.New("connection refused")

	t.Run("fails with network error after the last attempt", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
			calls.Add(1)
			return nil, refused
		}))

		_, err := engine.Execute(context.Background(), NewToken(), NewRequest(testURL))

		require.Error(t, err)
		assert.True(t, IsErrorType(err, NetworkError))
		assert.ErrorIs(t, err, refused)
		assert.Equal(t, int32(DefaultMaxAttempts), calls.Load())
	})

	t.Run("recovers on a later attempt", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
			if calls.Add(1) == 1 {
				return nil, refused
			}
			return stubResponse(200, testJSONBody), nil
		}))

		resp, err := engine.Execute(context.Background(), NewToken(), NewRequest(testURL))

		require.NoError(t, err)
		assert.Equal(t, 2, resp.Stats.Attempts)
	})
}

func TestEngineCancellation(t *testing.T) {
	t.Run("pre-cancelled token sends nothing", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(statusTransport(&calls, 200, testJSONBody))
		token := NewToken()
		token.Cancel()

		_, err := engine.Execute(context.Background(), token, NewRequest(testURL))

		assert.True(t, IsCancelled(err))
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Zero(t, calls.Load())
	})

	t.Run("token cancel aborts in-flight attempt", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(blockingTransport(&calls))
		token := NewToken()

		time.AfterFunc(10*time.Millisecond, func() { token.Cancel() })
		_, err := engine.Execute(context.Background(), token, NewRequest(testURL))

		assert.True(t, IsCancelled(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancel during backoff ends the wait", func(t *testing.T) {
		var calls atomic.Int32
		token := NewToken()
		engine := NewEngine(roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
			calls.Add(1)
			time.AfterFunc(10*time.Millisecond, func() { token.Cancel() })
			return stubResponse(500, ""), nil
		}), logger.NewNop(), WithStatusBackoff(time.Hour))

		req := NewRequest(testURL)
		req.RetryOnStatusCode = true

		start := time.Now()
		_, err := engine.Execute(context.Background(), token, req)

		assert.True(t, IsCancelled(err))
		assert.Equal(t, int32(1), calls.Load())
		assert.Less(t, time.Since(start), time.Minute)
	})

	t.Run("caller context cancellation trips the token", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(blockingTransport(&calls))
		token := NewToken()

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err := engine.Execute(ctx, token, NewRequest(testURL))

		assert.True(t, IsCancelled(err))
		assert.True(t, token.Cancelled())
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestEngineKeepAlive(t *testing.T) {
	t.Run("single attempt without retries", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(statusTransport(&calls, 500, ""))

		req := NewRequest(testURL)
		req.KeepAlive = true
		req.MaxAttempts = 5
		req.RetryOnStatusCode = true

		resp, err := engine.Execute(context.Background(), NewToken(), req)

		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("ignores timeout and caller cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		engine := newTestEngine(roundTripperFunc(func(r *nethttp.Request) (*nethttp.Response, error) {
			cancel()
			time.Sleep(3 * testShortTimeout)
			if err := r.Context().Err(); err != nil {
				return nil, err
			}
			return stubResponse(200, testJSONBody), nil
		}))

		req := NewRequest(testURL)
		req.KeepAlive = true
		req.Timeout = testShortTimeout
		token := NewToken()

		resp, err := engine.Execute(ctx, token, req)

		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.False(t, token.Cancelled())
	})
}

func TestEngineResponseTypes(t *testing.T) {
	tests := []struct {
		name     string
		mode     ResponseType
		body     string
		expected any
	}{
		{name: "json", mode: ResponseJSON, body: `{"a":1}`, expected: map[string]any{"a": float64(1)}},
		{name: "json default", mode: "", body: `[1,2]`, expected: []any{float64(1), float64(2)}},
		{name: "json empty body", mode: ResponseJSON, body: "", expected: nil},
		{name: "text", mode: ResponseText, body: "hello", expected: "hello"},
		{name: "blob", mode: ResponseBlob, body: "raw", expected: []byte("raw")},
		{name: "bytes", mode: ResponseBytes, body: "raw", expected: []byte("raw")},
		{name: "form", mode: ResponseForm, body: "a=1&b=two", expected: url.Values{"a": {"1"}, "b": {"two"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			engine := newTestEngine(statusTransport(&calls, 200, tt.body))

			req := NewRequest(testURL)
			req.ResponseType = tt.mode

			resp, err := engine.Execute(context.Background(), NewToken(), req)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp.Data)
		})
	}

	t.Run("invalid json on success is unexpected", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(statusTransport(&calls, 200, "{not json"))

		_, err := engine.Execute(context.Background(), NewToken(), NewRequest(testURL))

		assert.True(t, IsErrorType(err, UnexpectedError))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("invalid json on failure falls back to text", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(statusTransport(&calls, 400, "bad request"))

		resp, err := engine.Execute(context.Background(), NewToken(), NewRequest(testURL))

		require.NoError(t, err)
		assert.Equal(t, "bad request", resp.Data)
	})

	t.Run("stream leaves the body open", func(t *testing.T) {
		var calls atomic.Int32
		engine := newTestEngine(statusTransport(&calls, 200, "streamed payload"))

		req := NewRequest(testURL)
		req.ResponseType = ResponseStream
		req.Timeout = time.Minute

		resp, err := engine.Execute(context.Background(), NewToken(), req)
		require.NoError(t, err)
		assert.Nil(t, resp.Body)

		body, ok := resp.Data.(io.ReadCloser)
		require.True(t, ok)
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "streamed payload", string(data))
		assert.NoError(t, body.Close())
		assert.NoError(t, body.Close())
	})
}

func TestEngineBuildsWireRequest(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		n := len(bodies)
		mu.Unlock()

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "relay", r.Header.Get("X-Client"))
		assert.Equal(t, nethttp.MethodPost, r.Method)

		if n == 1 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusCreated)
	}))
	defer server.Close()

	req := NewRequest(server.URL)
	req.Method = nethttp.MethodPost
	req.Body = []byte(`{"name":"relay"}`)
	req.Auth = &BasicAuth{Username: "user", Password: "secret"}
	req.RetryOnStatusCode = true
	req.WithHeader("X-Client", "relay")

	resp, err := newTestEngine(server.Client()).Execute(context.Background(), NewToken(), req)

	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"name":"relay"}`, `{"name":"relay"}`}, bodies)
}

func TestEngineRejectsInvalidRequest(t *testing.T) {
	var calls atomic.Int32
	engine := newTestEngine(statusTransport(&calls, 200, ""))

	_, err := engine.Execute(context.Background(), NewToken(), &Request{})

	assert.True(t, IsErrorType(err, ValidationError))
	assert.Zero(t, calls.Load())
}

func TestEngineCountsCalls(t *testing.T) {
	var calls atomic.Int32
	engine := newTestEngine(statusTransport(&calls, 500, ""))

	req := NewRequest(testURL)
	req.RetryOnStatusCode = true

	ctx := logger.WithHTTPCounter(context.Background())
	first, err := engine.Execute(ctx, NewToken(), req)
	require.NoError(t, err)
	second, err := engine.Execute(ctx, NewToken(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Stats.CallCount+1, second.Stats.CallCount)
	assert.Equal(t, int64(2*DefaultMaxAttempts), logger.GetHTTPCounter(ctx))
	assert.Positive(t, logger.GetHTTPElapsed(ctx))
}
