// Package notify tells the outside world when a metric's status changes.
//
// Webhooks posts each change to the configured slack, teams or plain http
// targets. Delivery is best effort: failures are logged and never reach the
// caller.
package notify
