package status

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Band
	}{
		{name: "continue", code: 100, want: Info},
		{name: "upper info", code: 199, want: Info},
		{name: "ok", code: 200, want: Success},
		{name: "no content", code: 204, want: Success},
		{name: "moved", code: 301, want: Redirect},
		{name: "not modified", code: 304, want: Redirect},
		{name: "bad request", code: 400, want: ClientError},
		{name: "not found", code: 404, want: ClientError},
		{name: "upper client", code: 499, want: ClientError},
		{name: "internal", code: 500, want: ServerError},
		{name: "upper server", code: 599, want: ServerError},
		{name: "non standard high", code: 600, want: ServerError},
		{name: "zero", code: 0, want: ServerError},
		{name: "negative", code: -1, want: ServerError},
		{name: "max int", code: math.MaxInt, want: ServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.code))
		})
	}
}

func TestClassifyPartitionsDomain(t *testing.T) {
	bounds := map[Band][2]int{
		Info:        {100, 200},
		Success:     {200, 300},
		Redirect:    {300, 400},
		ClientError: {400, 500},
	}

	for code := 100; code < 1000; code++ {
		band := Classify(code)
		matched := 0
		for b, r := range bounds {
			if code >= r[0] && code < r[1] {
				matched++
				assert.Equal(t, b, band, "code %d", code)
			}
		}
		if matched == 0 {
			assert.Equal(t, ServerError, band, "code %d", code)
		}
		assert.LessOrEqual(t, matched, 1)
	}
}

func TestFailurePredicates(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(302))
	assert.True(t, IsSuccess(101))
	assert.False(t, IsSuccess(404))

	assert.True(t, IsFailure(404))
	assert.True(t, IsFailure(503))
	assert.True(t, IsFailure(700))
	assert.False(t, IsFailure(204))
}

func TestBandString(t *testing.T) {
	assert.Equal(t, "info", Info.String())
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "redirect", Redirect.String())
	assert.Equal(t, "client_error", ClientError.String())
	assert.Equal(t, "server_error", ServerError.String())
}
