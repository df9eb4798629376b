package cache

import "time"

const (
	// DefaultTTL is how long a response stays cached when no TTL is configured
	DefaultTTL = 5 * time.Minute

	// DefaultKeyPrefix namespaces every key written by the response cache
	DefaultKeyPrefix = "relay:"
)

// Test-Specific Time Durations
//
// These constants are used in test files to simulate expiry without
// hardcoding magic numbers.

const (
	// TestShortTTL is a very short TTL for testing expiration behavior.
	TestShortTTL = 100 * time.Millisecond

	// TestLongTTL is a long TTL for test data that should not expire during tests.
	TestLongTTL = 10 * time.Minute
)
