/*
Package sandbox executes untrusted tool code for many tenants on a fixed set
of reusable isolates.

# Overview

A Pool owns PoolSize isolates created up front. Each Execute call either
takes a free isolate or waits in a bounded FIFO queue; once the queue holds
QueueLimit callers, further calls fail immediately with QueueFullError.

Every call runs in a fresh goja runtime, so globals defined by one call are
never visible to the next. Inside the runtime caller code sees:

  - params, and optionally the same value under payload or input
  - context.resources, a map from resource name to an accessor object
  - console.log/info/warn/error/debug, captured into ExecuteResult.Logs

# Code Wrapping

Caller code is the body of an async function. It is parsed on its own and
rejected unless it compiles to exactly that function, so text such as "})"
cannot close the wrapper and run statements at the top level.

# Resource Bridge

Accessor methods JSON-encode their arguments and call a host bridge with
plain strings. The bridge forwards the call to a ResourceGateway on its own
goroutine and settles the returned promise from the runtime's goroutine.
Gateway failures reject with an Error whose message is the gateway's error
text.

	rows = await context.resources.db.query("select * from users where id = $1", [params.id])
	res  = await context.resources.stripe.request("GET", "/v1/customers", { query: { limit: 10 } })

# Limits

  - Wall clock: per-call timeout, enforced by interrupting the runtime
  - Stack depth: MaxCallStack frames
  - Heap: live heap after GC against PoolSize x MemoryLimitMB; a breach
    aborts the newest call only (approximate)
  - Results and console output: MaxResultValues serialized values
  - Logs and resource calls: MaxLogEntries and MaxBridgeCalls per call

# Results

Return values are converted to JSON-safe Go values: Dates become ISO-8601
strings, Uint8Arrays become base64, Maps become [key, value] pairs, Sets
become arrays, NaN and Infinity become nil, and cycles fail with a TypeError.

# Usage Example

	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), gateway, logger)
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	result, err := pool.Execute(ctx, &sandbox.ExecuteInput{
		Code:   "return params.a + params.b",
		Params: map[string]interface{}{"a": 1, "b": 2},
	})
*/
package sandbox
