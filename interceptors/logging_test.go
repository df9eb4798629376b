package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-relay/events"
	"github.com/gaborage/go-relay/http"
	"github.com/gaborage/go-relay/internal/testutil"
	"github.com/gaborage/go-relay/logger"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func completed(lines []map[string]any) []map[string]any {
	var out []map[string]any
	for _, l := range lines {
		if l["message"] == "request completed" {
			out = append(out, l)
		}
	}
	return out
}

func TestLoggingSummaryLevels(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		level string
	}{
		{name: "success", code: nethttp.StatusOK, level: "info"},
		{name: "failed status", code: nethttp.StatusServiceUnavailable, level: "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			server := newRecordingServer(t, jsonHandler(tt.code, nil))
			c, _ := newTestClient(server, NewLogging(logger.NewWithWriter(&buf, "info", nil), LoggingOptions{}))

			_, err := c.Get(context.Background(), http.NewRequest("/"))
			require.NoError(t, err)

			lines := completed(logLines(t, &buf))
			require.Len(t, lines, 1)
			assert.Equal(t, tt.level, lines[0]["level"])
			assert.Equal(t, float64(tt.code), lines[0]["status"])
			assert.Equal(t, "GET", lines[0]["method"])
			assert.Equal(t, "http-lifecycle", lines[0]["component"])
		})
	}
}

func TestLoggingErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	closed := testutil.ClosedServerURL(t)

	bus := events.NewBus()
	NewLogging(logger.NewWithWriter(&buf, "debug", nil), LoggingOptions{}).Register(bus)
	c := http.NewBuilder(logger.NewNop()).
		WithBus(bus).
		WithBackoff(time.Millisecond, time.Millisecond).
		Build()

	_, err := c.Get(context.Background(), http.NewRequest(closed))
	require.Error(t, err)

	all := logLines(t, &buf)
	lines := completed(all)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])
	assert.NotContains(t, lines[0], "status")

	var phases []string
	for _, l := range all {
		phases = append(phases, l["message"].(string))
	}
	assert.Equal(t, []string{"request phase", "sending request", "error phase", "request completed"}, phases)
}

func TestLoggingPayloads(t *testing.T) {
	var buf bytes.Buffer
	server := newRecordingServer(t, jsonHandler(nethttp.StatusOK, map[string]string{"answer": "42"}))
	c, _ := newTestClient(server, NewLogging(logger.NewWithWriter(&buf, "debug", nil), LoggingOptions{
		LogPayloads:        true,
		MaxPayloadLogBytes: 4,
	}))

	req, err := http.NewRequest("/").WithJSON(map[string]string{"q": "question"})
	require.NoError(t, err)
	req.WithHeader("Authorization", "Bearer "+testutil.TestBearerToken)
	_, err = c.Post(context.Background(), req)
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, testutil.TestBearerToken)
	assert.Contains(t, out, "...(truncated)")
	assert.Contains(t, out, `"body_size"`)
	assert.Contains(t, out, `"response_body"`)
}

func TestRedactAndTruncate(t *testing.T) {
	redacted := redactHeaders(map[string]string{
		"authorization": "Bearer x",
		"X-API-KEY":     "k",
		"Accept":        "application/json",
	})
	assert.Equal(t, "[REDACTED]", redacted["authorization"])
	assert.Equal(t, "[REDACTED]", redacted["X-API-KEY"])
	assert.Equal(t, "application/json", redacted["Accept"])

	assert.Equal(t, "abc", truncate([]byte("abc"), 3))
	assert.Equal(t, "ab...(truncated)", truncate([]byte("abc"), 2))
}
