// Package http provides an HTTP client that runs every request through a
// five-phase interception pipeline and a retry/timeout engine.
//
// Lifecycle
//   - REQUEST: listeners may rewrite the URL or headers, or answer the request
//     themselves (RequestEvent.Respond), which skips the network.
//   - BEFORE_SEND: last chance to change headers, URL or timeout; may also answer.
//   - The Engine performs the exchange when no listener answered.
//   - RESPONSE: listeners may replace the response or prevent delegate reporting.
//   - ERROR: entered on engine failures other than cancellation; a listener may
//     recover by attaching a response.
//   - TERMINATE: dispatched exactly once per Handle call, on every path.
//
// Retries
//   - MaxAttempts below 2 is raised to 3 unless KeepAlive is set.
//   - 4xx responses are returned at once unless RetryOnClientError is set.
//   - 5xx responses are retried only when RetryOnStatusCode is set.
//   - Timeouts are retried immediately; the last one fails with a timeout error.
//   - Transport failures are retried unless it was the last attempt.
//
// Backoff Strategy
//   - Linear: status retries wait StatusBackoff*(attempt+1) (500ms base),
//     transport retries wait TransportBackoff*(attempt+1) (1s base).
//   - Waits end early when the request is cancelled.
//
// Notes
//   - Request bodies are re-sent by rebuilding the http.Request on each attempt.
//   - KeepAlive sends a single attempt without timeout that is detached from the
//     caller context.
//   - Listener errors are not retried and are surfaced immediately.
package http
