// Package ws implements the WebSocket measurement stream.
//
// Hub manages a set of connected clients. On connect a client receives the
// latest measurement of every metric; afterwards every newly inserted
// measurement is pushed as it is published.
//
// Message format sent to clients:
//
//	{"event": "snapshot",    "data": {"<metric_uuid>": { /* measurement */ }}}
//	{"event": "measurement", "data": { /* measurement */ }}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/stream.
package ws
