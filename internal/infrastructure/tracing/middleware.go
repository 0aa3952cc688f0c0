package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/crawlrun/internal/shared/id"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithTrace(c.Request.Context(),
			id.TraceID(incomingID(c, TraceHeader)),
			id.SpanID(incomingID(c, SpanHeader)),
		)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)

		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}

// incomingID returns a propagated ID header, or "" when it is not an ID
// this service could have issued.
func incomingID(c *gin.Context, header string) string {
	v := c.GetHeader(header)
	if v == "" || !id.IsValid(v) {
		return ""
	}
	return v
}
