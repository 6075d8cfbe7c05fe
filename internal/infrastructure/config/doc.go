// Package config loads service configuration from defaults, an optional
// YAML or TOML file and environment variables, in that order of precedence.
//
// Sections:
//   - Server: listen address, graceful shutdown timeout, gzip
//   - Pool: sandbox pool size, memory cap, queue depth, timeouts and per-call limits
//   - Gateway: resource gateway URL, secret, retries, rate limit and circuit breaker
//   - Auth: service secret required on inbound requests
//   - Logging, RateLimit, CORS
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	pool, err := sandbox.NewPool(cfg.Sandbox(), gateway, logger)
//
// Environment Variables:
//   - CONFIG_FILE (path ending in .yaml, .yml or .toml)
//   - PORT, HOST, SHUTDOWN_TIMEOUT, GZIP_ENABLED
//   - POOL_SIZE, POOL_MEMORY_LIMIT_MB, POOL_QUEUE_LIMIT, POOL_DEFAULT_TIMEOUT,
//     POOL_MAX_TIMEOUT, POOL_MAX_CALL_STACK, POOL_MAX_LOG_ENTRIES, POOL_MAX_BRIDGE_CALLS
//   - GATEWAY_URL, GATEWAY_SECRET, GATEWAY_TIMEOUT, GATEWAY_RETRIES, GATEWAY_RPS,
//     GATEWAY_BURST, GATEWAY_BREAKER_FAILURES, GATEWAY_BREAKER_TIMEOUT
//   - SERVICE_SECRET, LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, CORS_ENABLED, CORS_ORIGINS
package config
