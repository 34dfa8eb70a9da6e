// Package shipper is the collector's HTTP client for the server API.
//
// Client.Metrics reads the metric catalog (GET /api/v1/metrics), returned by
// the server as a JSON object keyed by metric UUID. Client.Post writes one
// measurement (POST /api/v1/measurements) with the API key header when auth
// mode is apikey.
//
// Non-2xx responses are returned as *StatusError. 4xx statuses other than
// 408 and 429 are permanent: retrying the same request will not help, and
// callers log and drop it.
//
// Backoff implements truncated exponential backoff with ±25% jitter,
// starting at one second and doubling up to a configurable ceiling. The
// scheduler uses it between failed catalog fetches.
package shipper
