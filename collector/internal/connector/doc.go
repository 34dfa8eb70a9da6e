// Package connector provides the source connectors the collector uses to
// measure metrics, one per (source type, metric type) pair.
//
// Every connector implements Connector: it builds the API and landing URLs
// from its parameters, fetches one or more raw responses, and parses them into
// a value, a total and a list of entities. Collect drives one connector for one
// source and turns failures into the connection_error / parse_error strings of
// a types.SourceMeasurement; it never returns an error itself.
//
// Connectors are looked up in a Registry keyed by Key{SourceType, MetricType}.
// Default() builds the registry of built-in connectors once at start-up; it is
// read-only afterwards and safe for concurrent lookups.
//
// Parameters are declared per registration as a []Parameter schema (type,
// mandatory flag, default, allowed values). NewParams binds a source's raw
// parameters to that schema and validates them once; a missing mandatory
// parameter is a *ConfigurationError and the metric is not collected.
//
// Built-in source types: gitlab, jenkins, sonarqube, junit, cobertura,
// performancetest_runner, prometheus, manual_number.
//
// Authentication (private token header, bearer token, basic auth) is applied by
// the authRoundTripper in client.go; connectors that need a source-specific
// scheme implement Authenticator.
package connector
