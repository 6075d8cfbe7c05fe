/*
Package resilience provides the circuit breaker used by outbound clients.

A Breaker starts closed and counts outcomes. When ReadyToTrip accepts the
counts after a failure it opens and rejects calls with ErrCircuitOpen until
Timeout elapses. It then admits up to MaxRequests trial calls; that many
consecutive successes close it, any failure reopens it.

IsSuccessful lets callers exclude application-level errors (a 4xx, a
rejected query) from the failure counts.

	breaker := resilience.New("gateway", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.ConsecutiveFailures(5),
	})

	data, err := resilience.Call(breaker, func() ([]byte, error) {
		return fetch(ctx)
	})

States:

	Closed --[trip]--> Open --[timeout]--> Half-Open --[successes]--> Closed
	                     ^                     |
	                     +-----[failure]-------+
*/
package resilience
