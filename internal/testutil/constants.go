// Package testutil provides shared constants and helpers for relay tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	// TestError is a generic error message for test error scenarios.
	TestError = "test error"

	// TestBearerToken is a credential that must never appear in logs.
	TestBearerToken = "secret-token"

	// TestServiceName identifies the service in observability tests.
	TestServiceName = "relay-test"
)

// ClosedServerURL returns the address of a server that has already shut down,
// so requests to it fail with a connection error.
func ClosedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}
