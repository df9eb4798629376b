package testing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gaborage/go-relay/cache"
)

// AssertCacheHit asserts that a key exists in the cache and can be retrieved successfully.
func AssertCacheHit(t *testing.T, c cache.Cache, key string) {
	t.Helper()

	if _, err := c.Get(context.Background(), key); err != nil {
		t.Errorf("expected cache hit for key %q, got error: %v", key, err)
	}
}

// AssertCacheMiss asserts that a key does not exist in the cache.
func AssertCacheMiss(t *testing.T, c cache.Cache, key string) {
	t.Helper()

	_, err := c.Get(context.Background(), key)
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected cache miss (ErrNotFound) for key %q, got: %v", key, err)
	}
}

// AssertValue asserts that key holds exactly expected.
func AssertValue(t *testing.T, c cache.Cache, key string, expected []byte) {
	t.Helper()

	actual, err := c.Get(context.Background(), key)
	if err != nil {
		t.Errorf("expected value for key %q, got error: %v", key, err)
		return
	}
	if !bytes.Equal(actual, expected) {
		t.Errorf("value mismatch for key %q: expected %q, got %q", key, expected, actual)
	}
}

// AssertOperationCount asserts that an operation was called a certain number of times.
//
// Example:
//
//	AssertOperationCount(t, mock, "Get", 5)
func AssertOperationCount(t *testing.T, mock *MockCache, operation string, expected int64) {
	t.Helper()

	if actual := mock.OperationCount(operation); actual != expected {
		t.Errorf("expected %s to be called %d times, got %d", operation, expected, actual)
	}
}

// AssertNoOperations asserts that the mock was never used.
func AssertNoOperations(t *testing.T, mock *MockCache) {
	t.Helper()

	for _, op := range []string{"Get", "Set", "Delete", "Health", "Stats", "Close"} {
		if n := mock.OperationCount(op); n != 0 {
			t.Errorf("expected no operations, but %s was called %d times", op, n)
		}
	}
}

// AssertCacheSize asserts the number of stored entries.
func AssertCacheSize(t *testing.T, mock *MockCache, expected int) {
	t.Helper()

	if actual := mock.Len(); actual != expected {
		t.Errorf("expected cache size %d, got %d (keys: %v)", expected, actual, mock.Keys())
	}
}

// AssertCacheClosed asserts that Close has been called on the mock.
func AssertCacheClosed(t *testing.T, mock *MockCache) {
	t.Helper()

	if !mock.IsClosed() {
		t.Error("expected cache to be closed")
	}
}
