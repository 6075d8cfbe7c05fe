/*
Package monitoring provides Prometheus metrics for the sandbox service.

# Overview

Metrics implements sandbox.Observer, so the pool reports executions, queue
rejections, queue wait, pool occupancy and resource bridge calls without
depending on Prometheus itself. HTTP requests are recorded by Middleware
and outbound gateway calls by Timer.

A Window of recent execution durations backs the p50/p95/p99 figures in
the JSON stats endpoint.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	pool.WithObserver(metrics)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "gateway", "query")
	// ... perform call ...
	timer.Stop("success")
*/
package monitoring
