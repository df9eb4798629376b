package interceptors

import (
	"context"
	nethttp "net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/trace"
)

const testTraceParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestTraceIDGeneratesRequestID(t *testing.T) {
	server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
	c, _ := newTestClient(server, NewTraceID(TraceIDOptions{}))

	_, err := c.Get(context.Background(), http.NewRequest("/"))
	require.NoError(t, err)

	id := server.lastHeaders().Get(trace.HeaderXRequestID)
	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr)
	assert.Empty(t, server.lastHeaders().Get(trace.HeaderTraceParent))
}

func TestTraceIDSources(t *testing.T) {
	tests := []struct {
		name string
		opts TraceIDOptions
		ctx  context.Context
		want string
	}{
		{
			name: "context trace id",
			ctx:  trace.WithTraceID(context.Background(), "from-context"),
			want: "from-context",
		},
		{
			name: "extractor wins over context",
			opts: TraceIDOptions{Extractor: func(context.Context) (string, bool) { return "extracted", true }},
			ctx:  trace.WithTraceID(context.Background(), "from-context"),
			want: "extracted",
		},
		{
			name: "extractor miss falls back to generator",
			opts: TraceIDOptions{
				Extractor:  func(context.Context) (string, bool) { return "", false },
				NewTraceID: func() string { return "generated" },
			},
			ctx:  context.Background(),
			want: "generated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
			c, _ := newTestClient(server, NewTraceID(tt.opts))

			_, err := c.Get(tt.ctx, http.NewRequest("/"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, server.lastHeaders().Get(trace.HeaderXRequestID))
		})
	}
}

func TestTraceIDCustomHeaderKeepsExisting(t *testing.T) {
	server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
	c, _ := newTestClient(server, NewTraceID(TraceIDOptions{Header: "X-Correlation-ID"}))

	req := http.NewRequest("/").WithHeader("X-Correlation-ID", "caller-set")
	_, err := c.Get(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "caller-set", server.lastHeaders().Get("X-Correlation-ID"))
	assert.Empty(t, server.lastHeaders().Get(trace.HeaderXRequestID))
}

func TestTraceIDW3C(t *testing.T) {
	t.Run("child of context parent", func(t *testing.T) {
		server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
		c, _ := newTestClient(server, NewTraceID(TraceIDOptions{W3C: true}))

		ctx := trace.WithTraceParent(context.Background(), testTraceParent)
		ctx = trace.WithTraceState(ctx, "vendor=value")
		_, err := c.Get(ctx, http.NewRequest("/"))
		require.NoError(t, err)

		tp := server.lastHeaders().Get(trace.HeaderTraceParent)
		require.True(t, trace.IsValidTraceParent(tp))
		parts := strings.Split(tp, "-")
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", parts[1])
		assert.NotEqual(t, "00f067aa0ba902b7", parts[2])
		assert.Equal(t, "vendor=value", server.lastHeaders().Get(trace.HeaderTraceState))
	})

	t.Run("generated without parent", func(t *testing.T) {
		server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
		c, _ := newTestClient(server, NewTraceID(TraceIDOptions{W3C: true}))

		_, err := c.Get(context.Background(), http.NewRequest("/"))
		require.NoError(t, err)

		assert.True(t, trace.IsValidTraceParent(server.lastHeaders().Get(trace.HeaderTraceParent)))
		assert.Empty(t, server.lastHeaders().Get(trace.HeaderTraceState))
	})

	t.Run("request header kept", func(t *testing.T) {
		server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, nil))
		c, _ := newTestClient(server, NewTraceID(TraceIDOptions{W3C: true}))

		req := http.NewRequest("/").WithHeader(trace.HeaderTraceParent, testTraceParent)
		_, err := c.Get(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, testTraceParent, server.lastHeaders().Get(trace.HeaderTraceParent))
	})
}
