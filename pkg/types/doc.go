// Package types defines the transport types shared by the collector and the
// server: the catalog rows the collector reads, the measurement payload it
// posts, and the persisted measurement records the server returns.
//
// Source values and totals are carried as decimal (or version) strings so the
// count, percentage and version_number scales share one representation. A nil
// value means the source produced no value.
package types
