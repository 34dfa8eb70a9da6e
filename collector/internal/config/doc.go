// Package config loads and watches the collector configuration file
// (collector.yaml).
//
// Top-level types:
//   - Config{Collector}: full config tree parsed from YAML
//   - CollectorConfig: server_url, sleep_duration, measurement_frequency,
//     measurement_limit, source_timeout, max_backoff, post_rate,
//     health_check_file, log_level, server_auth
//   - AuthConfig: mode (apikey|none), header, key_env; Key() resolves the key
//     from the environment
//
// Load(path) reads the YAML file, applies defaults, then environment overrides
// (SERVER_HOST, SERVER_PORT, COLLECTOR_SLEEP_DURATION, ...) and finally
// validates. FromEnv() builds the same config without a file.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after every
// event so atomic-save editors (rename then create) keep being tracked.
package config
