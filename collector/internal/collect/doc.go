// Package collect runs every configured source of one metric and assembles
// the measurement the collector posts to the server.
//
// All sources are resolved against the connector registry and their
// parameters validated before any network call is made. A metric with an
// unknown source type or a missing mandatory parameter is skipped entirely:
// Collect returns a *connector.ConfigurationError and no measurement.
//
// Valid sources are fetched concurrently, each under its own timeout derived
// from the caller's context. One source timing out never cancels its
// siblings. Source failures are recorded on the source measurement
// (connection_error or parse_error) and set has_error on the post.
//
// Values are combined with the metric's addition operator to detect
// calculation errors early (summing version numbers, non-numeric values).
// The server recomputes the metric value from the posted sources; the
// combined value here is only used for has_error and logging.
package collect
