// Package config loads and watches the exporter configuration file
// (fishnet_config.yaml).
//
// Top-level types:
//   - Config{Servers, Exporter, MetricsServer}: full config tree parsed from YAML
//   - Server: name, url, key, key_env; BearerKey() resolves the key
//   - ExporterConfig: port, scrape_interval, namespace, counter_mode,
//     max_concurrency, id, log_level
//   - MetricsServerConfig: enabled, mode (central|client), central_url,
//     auth_key, auth_key_env, compress; Token() resolves the shared key
//   - Interval: scrape_interval accepting integer seconds or "30s" strings
//   - Provider: atomically swappable *Config shared with the scheduler
//
// Load(path) reads the YAML file, applies defaults (port 9101, 60s interval,
// namespace "fishnet", cumulative counters), applies FISHNET_* environment
// overrides, then validates. LoadOrDefault falls back to Default() when the
// file is missing or invalid, which is what the exporter does at startup.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory so that
// atomic saves and ConfigMap symlink swaps are both picked up.
package config
