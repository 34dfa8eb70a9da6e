// Package scheduler runs the collector's main loop.
//
// Each cycle:
//
//  1. writes the health check file (RFC 3339 timestamp);
//  2. fetches the metric catalog, retrying with truncated exponential backoff
//     (capped at max_backoff) until it succeeds or the context ends;
//  3. selects the due metrics: never collected, configuration changed since
//     the last collection, flagged outdated by the server, or last collected
//     longer than measurement_frequency ago. Changed and outdated metrics go
//     first;
//  4. collects the due metrics in batches of measurement_limit, the metrics
//     of one batch concurrently;
//  5. posts every measurement, throttled to post_rate posts per second.
//     A failed post is logged and the metric is retried next cycle.
//
// Then it sleeps sleep_duration. Tunables can be swapped at runtime with
// Update, which the collector calls on config hot-reload.
package scheduler
