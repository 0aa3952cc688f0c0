// Package config provides 12-factor configuration for the crawlrun service.
//
// Configuration is loaded from environment variables with defaults. Flags in
// cmd/server override the environment.
//
// Sections:
//   - Server: listen address, shutdown grace period, request body limit
//   - Logging: level and output format
//   - RateLimit: optional per-IP or global rate limiting
//   - Pipeline: code length limit, fetch and execution timeouts, dial pinning
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, MAX_REQUEST_BYTES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_GLOBAL
//   - MAX_CODE_LENGTH, FETCH_TIMEOUT, EXEC_TIMEOUT, FETCH_PIN_RESOLVED, FETCH_USER_AGENT
package config
