/*
Package http exposes the sandbox pool over gin.

Routes:

	POST /execute   run tool code, body ExecuteRequest
	GET  /stats     pool occupancy, execution totals, latency percentiles
	GET  /health    200 while the pool has isolates, 503 after shutdown

Every response is an envelope. Success:

	{"success": true, "data": {...}}

Failure:

	{"success": false, "error": {"type": "timeout", "message": "..."}}

StatusFor maps error types to statuses: queue_full and shutdown are 503
(queue_full adds Retry-After), validation and compile are 400, timeout is
504, canceled is 499, everything else is 500.
*/
package http
