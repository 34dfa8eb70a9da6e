// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `collector:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort                 : port for the REST API and WebSocket stream (default 5001)
//   - CatalogPath              : YAML file with reports, metrics and sources (default catalog.yaml)
//   - LogLevel                 : debug | info | warn | error (default info)
//   - Auth.Mode                : "apikey" or "none"
//   - Auth.KeyEnv              : environment variable holding the expected API key
//   - Auth.Header              : HTTP header name (default "X-API-Key")
//   - Storage.Backend          : "memory" or "sqlite" (default memory)
//   - Storage.Path             : SQLite database file (default qualitypulse.db)
//   - Entities.OrphanRetention : how long an orphaned entity annotation is kept (default 168h)
//   - Notify.Webhooks          : status-change webhook targets (slack | teams | http)
//
// Environment overrides: SERVER_PORT, DATABASE_PATH (also selects the sqlite
// backend), CATALOG_PATH, LOG_LEVEL.
//
// Load(path) applies defaults before unmarshalling, then the environment,
// then validates.
package config
