// Package receiver decides what happens to a posted measurement.
//
// Receive discards a post for a metric or source that is no longer in the
// catalog. Otherwise it stamps each source with its current parameter hash,
// reconciles entity annotations against the latest stored measurement and
// computes the scales. A result equal to the latest measurement only moves
// that measurement's end; anything else is inserted as a new measurement.
//
// Decisions for one metric are serialised so concurrent posts cannot both
// insert. Inserted measurements are published to the stream, and a status
// change on the metric's selected scale is handed to the notifier.
//
// Annotate sets the user data of one entity by copying the latest measurement
// into a new one with the annotation applied.
package receiver
