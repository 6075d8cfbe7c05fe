// Package main runs the tool-execution sandbox service.
//
// The service accepts JavaScript tool code over HTTP, runs it in a fixed
// pool of isolates with per-call timeouts and memory guarding, and forwards
// database and API calls made by that code to the resource gateway.
//
// Configuration:
//   - Defaults, then an optional YAML/TOML file, then environment variables
//   - -config overrides CONFIG_FILE
//
// Usage:
//
//	POOL_SIZE=8 GATEWAY_URL=http://gateway:3000 SERVICE_SECRET=... ./server
//	./server -config sandbox.yaml -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop accepting requests, wait up to SHUTDOWN_TIMEOUT
//     for in-flight executions, then shut the pool down
package main
