// Package api implements the HTTP REST API of the qualitypulse server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health                                   store and catalog counts
//	GET  /api/v1/metrics                                  catalog read, keyed by metric uuid
//	POST /api/v1/measurements                             measurement write (API key)
//	GET  /api/v1/metrics/{metric_uuid}/measurements       history, newest first (?limit=)
//	GET  /api/v1/metrics/{metric_uuid}/measurements/latest
//	PUT  /api/v1/metrics/{metric_uuid}/sources/{source_uuid}/entities/{entity_key}
//	                                                      entity annotation (API key)
//	GET  /ws/stream                                       measurement stream
//
// All endpoints respond with Content-Type: application/json. Errors are
// returned as {"error": "..."}.
package api
