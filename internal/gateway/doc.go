// Package gateway is the HTTP client for the external resource-query
// service. Sandboxed database and API calls arrive as sandbox.QueryRequest
// values and are posted to {URL}/internal/resources/query.
//
// Requests go through a rate limiter, a circuit breaker and a retrying
// transport. Only 5xx responses and transport failures count against the
// breaker or are retried; a query the gateway rejects is returned as a
// QueryError whose message is the gateway's error string verbatim.
package gateway
