// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent, Alerting, API}: full config tree parsed from YAML
//   - AgentConfig: application name, log settings, scrape timeout, sources []
//   - Source: id, endpoint, optional series prefix, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env; Key(), Token() and
//     Password() resolve secrets from environment variables
//   - AlertingConfig: schedule, mute switch, dispatch pool, incident store,
//     checks, subscriptions and per-channel alerter settings
//   - APIConfig: listen address and API key auth of the admin API
//
// Load(path) reads the YAML file, applies defaults (60s schedule, memory
// store, 4 dispatch workers, :8080), then validates required fields and enums.
// Secrets are never read from the file itself, only from the environment
// variables it names.
//
// Runtime() turns the alerting section into the typed checks, subscriptions,
// mute flag and schedule the scheduler consumes. A bad check or subscription
// is skipped and reported; it never rejects the whole file. Alerters() builds
// the alerter set for the registry.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
