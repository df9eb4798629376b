package testing

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaborage/go-relay/cache"
)

// MockCache is an in-memory cache implementation for testing.
// It is thread-safe and tracks all operations for assertion purposes.
type MockCache struct {
	mu     sync.RWMutex
	data   map[string]cacheEntry
	closed atomic.Bool
	now    func() time.Time

	// Configurable behavior
	delay       time.Duration
	getError    error
	setError    error
	deleteError error
	healthError error

	// Operation tracking
	getCalls    atomic.Int64
	setCalls    atomic.Int64
	deleteCalls atomic.Int64
	healthCalls atomic.Int64
	statsCalls  atomic.Int64
	closeCalls  atomic.Int64
}

var _ cache.Cache = (*MockCache)(nil)

// cacheEntry represents a stored value with expiration; a zero expiration never expires.
type cacheEntry struct {
	value      []byte
	ttl        time.Duration
	expiration time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && !now.Before(e.expiration)
}

// NewMockCache creates a new MockCache with default behavior.
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// WithDelay configures a delay for Get, Set, Delete and Health.
func (m *MockCache) WithDelay(delay time.Duration) *MockCache {
	m.delay = delay
	return m
}

// WithGetFailure configures Get operations to return an error.
func (m *MockCache) WithGetFailure(err error) *MockCache {
	m.getError = err
	return m
}

// WithSetFailure configures Set operations to return an error.
func (m *MockCache) WithSetFailure(err error) *MockCache {
	m.setError = err
	return m
}

// WithDeleteFailure configures Delete operations to return an error.
func (m *MockCache) WithDeleteFailure(err error) *MockCache {
	m.deleteError = err
	return m
}

// WithHealthFailure configures Health operations to return an error.
func (m *MockCache) WithHealthFailure(err error) *MockCache {
	m.healthError = err
	return m
}

// WithClock replaces the time source used for expiry.
func (m *MockCache) WithClock(now func() time.Time) *MockCache {
	m.now = now
	return m
}

func (m *MockCache) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get retrieves a value from the cache.
func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.getCalls.Add(1)

	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.closed.Load() {
		return nil, cache.ErrClosed
	}
	if m.getError != nil {
		return nil, m.getError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if entry.expired(m.now()) {
		delete(m.data, key)
		return nil, cache.ErrNotFound
	}
	return slices.Clone(entry.value), nil
}

// Set stores a value in the cache with TTL.
func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.setCalls.Add(1)

	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.closed.Load() {
		return cache.ErrClosed
	}
	if m.setError != nil {
		return m.setError
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	entry := cacheEntry{value: slices.Clone(value), ttl: ttl}
	if ttl > 0 {
		entry.expiration = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes a value from the cache.
func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.deleteCalls.Add(1)

	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.closed.Load() {
		return cache.ErrClosed
	}
	if m.deleteError != nil {
		return m.deleteError
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Health reports the configured health error, if any.
func (m *MockCache) Health(ctx context.Context) error {
	m.healthCalls.Add(1)

	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.closed.Load() {
		return cache.ErrClosed
	}
	return m.healthError
}

// Stats returns entry and operation counts.
func (m *MockCache) Stats() (map[string]any, error) {
	m.statsCalls.Add(1)

	if m.closed.Load() {
		return nil, cache.ErrClosed
	}

	return map[string]any{
		"entry_count":  m.Len(),
		"get_calls":    m.getCalls.Load(),
		"set_calls":    m.setCalls.Load(),
		"delete_calls": m.deleteCalls.Load(),
		"health_calls": m.healthCalls.Load(),
	}, nil
}

// Close marks the cache closed. Calling it again returns cache.ErrClosed.
func (m *MockCache) Close() error {
	m.closeCalls.Add(1)
	if !m.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockCache) IsClosed() bool {
	return m.closed.Load()
}

// Len returns the number of stored entries, expired ones included.
func (m *MockCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns the stored keys in sorted order.
func (m *MockCache) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.data))
}

// TTL returns the TTL a key was stored with.
func (m *MockCache) TTL(key string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data[key]
	return entry.ttl, ok
}

// OperationCount returns how often an operation was called.
// Supported operations: "Get", "Set", "Delete", "Health", "Stats", "Close".
func (m *MockCache) OperationCount(operation string) int64 {
	switch operation {
	case "Get":
		return m.getCalls.Load()
	case "Set":
		return m.setCalls.Load()
	case "Delete":
		return m.deleteCalls.Load()
	case "Health":
		return m.healthCalls.Load()
	case "Stats":
		return m.statsCalls.Load()
	case "Close":
		return m.closeCalls.Load()
	default:
		return 0
	}
}

// Reset clears stored data, counters and the closed flag. Configured
// failures are kept.
func (m *MockCache) Reset() {
	m.mu.Lock()
	m.data = make(map[string]cacheEntry)
	m.mu.Unlock()

	m.closed.Store(false)
	for _, c := range []*atomic.Int64{&m.getCalls, &m.setCalls, &m.deleteCalls, &m.healthCalls, &m.statsCalls, &m.closeCalls} {
		c.Store(0)
	}
}
