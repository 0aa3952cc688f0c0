/*
Package tracing provides lightweight request tracing written to the
structured log.

A trace is started by the HTTP middleware, or continued when the caller sends
X-Trace-ID and X-Span-ID headers. The pipeline opens one child span per
stage. Finished spans go through a buffered channel to a single collector
goroutine; when the buffer is full spans are dropped rather than blocking a
request.

# Usage

	tracer := tracing.New("crawlrun", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "fetch")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
