/*
Package tracing provides lightweight request tracing logged through zap.

Spans carry a trace ID shared by every operation in one request flow and a
span ID of their own. Trace context travels between services in the
X-Trace-ID and X-Span-ID headers: HTTPMiddleware reads them from inbound
requests and Inject writes them onto outbound ones.

	tracer := tracing.New("sandbox", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "sandbox.execute")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

Finished spans are buffered (1000) and logged by a single collector
goroutine; when the buffer is full new spans are dropped with a warning.
*/
package tracing
