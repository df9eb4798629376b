// Package testing provides an in-memory cache.Cache for unit tests, with
// configurable failures and delays, operation tracking, and assertion helpers.
//
// # Basic Usage
//
//	mock := testing.NewMockCache()
//	mock.Set(ctx, "key", []byte("value"), time.Minute)
//	data, err := mock.Get(ctx, "key")
//
// # Configurable Behavior
//
// Chain configuration methods to simulate failures or delays:
//
//	mock := testing.NewMockCache().
//	    WithGetFailure(cache.ErrClosed).
//	    WithDelay(100 * time.Millisecond)
//
// # Operation Tracking
//
//	AssertOperationCount(t, mock, "Get", 5)
//	AssertCacheHit(t, mock, "relay:GET:https://api.example.com/users")
//	AssertCacheMiss(t, mock, "missing:key")
//
// For tests requiring actual Redis behavior, use miniredis with the
// cache/redis package instead.
package testing
