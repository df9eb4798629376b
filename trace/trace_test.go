package trace

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testParent = "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01"

var traceParentRe = regexp.MustCompile(`^00-[0-9a-f]{32}-[0-9a-f]{16}-01$`)

func TestEnsureTraceID(t *testing.T) {
	t.Run("uses existing", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "existing-trace-id")
		assert.Equal(t, "existing-trace-id", EnsureTraceID(ctx))
	})

	t.Run("generates uuid when missing", func(t *testing.T) {
		got := EnsureTraceID(context.Background())
		assert.Regexp(t, `^[a-f0-9\-]{36}$`, strings.ToLower(got))
	})

	t.Run("empty value is ignored", func(t *testing.T) {
		_, ok := IDFromContext(WithTraceID(context.Background(), ""))
		assert.False(t, ok)
	})
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithTraceParent(context.Background(), testParent)
	ctx = WithTraceState(ctx, "vendor=a:b")

	tp, ok := ParentFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, testParent, tp)

	ts, ok := StateFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "vendor=a:b", ts)

	_, ok = ParentFromContext(context.Background())
	assert.False(t, ok)
}

func TestGenerateTraceParent(t *testing.T) {
	tp := GenerateTraceParent()
	assert.Regexp(t, traceParentRe, tp)
	assert.True(t, IsValidTraceParent(tp))
	assert.NotEqual(t, tp, GenerateTraceParent())
}

func TestChildTraceParent(t *testing.T) {
	child := ChildTraceParent(testParent)
	require.True(t, IsValidTraceParent(child))

	parts := strings.Split(child, "-")
	assert.Equal(t, "0123456789abcdef0123456789abcdef", parts[1], "trace id is preserved")
	assert.NotEqual(t, "0123456789abcdef", parts[2], "span id is replaced")
	assert.Equal(t, "01", parts[3])

	fresh := ChildTraceParent("garbage")
	assert.Regexp(t, traceParentRe, fresh)
}

func TestIsValidTraceParent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "valid", in: testParent, want: true},
		{name: "too few parts", in: "00-abc-01", want: false},
		{name: "uppercase", in: strings.ToUpper(testParent), want: false},
		{name: "zero trace id", in: "00-00000000000000000000000000000000-0123456789abcdef-01", want: false},
		{name: "zero span id", in: "00-0123456789abcdef0123456789abcdef-0000000000000000-01", want: false},
		{name: "short span", in: "00-0123456789abcdef0123456789abcdef-0123-01", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTraceParent(tt.in))
		})
	}
}
