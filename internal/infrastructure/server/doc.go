// Package server assembles the sandbox service: Prometheus registry,
// tracer, resource gateway client, isolate pool, gin router and the
// net/http server around them.
//
// /health and /metrics are open. /execute and /stats sit behind the rate
// limiter and service-secret auth.
package server
