package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/crawlrun/internal/shared/id"
)

func observedTracer() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestStartSpanNesting(t *testing.T) {
	tracer, _ := observedTracer()
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
	assert.True(t, id.IsValid(string(root.TraceID)))
}

func TestSubmitLogsSpans(t *testing.T) {
	tracer, logs := observedTracer()

	span, _ := tracer.StartSpan(context.Background(), "fetch")
	span.SetTag("host", "example.com")
	span.Finish()
	tracer.Submit(span)

	failed, _ := tracer.StartSpan(context.Background(), "execute")
	failed.SetError(errors.New("boom"))
	failed.Finish()
	tracer.Submit(failed)

	tracer.Close()

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "span completed", entries[0].Message)
	assert.Equal(t, "example.com", entries[0].ContextMap()["tag.host"])
	assert.Equal(t, "span completed with error", entries[1].Message)
}

func TestSubmitAfterCloseIsDropped(t *testing.T) {
	tracer, logs := observedTracer()
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Submit(span) })
	assert.Zero(t, logs.Len())
}

func TestHTTPMiddlewarePropagatesTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, _ := observedTracer()
	defer tracer.Close()

	var seen id.TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/run", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	upstream := id.NewTraceID()
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	req.Header.Set(TraceHeader, upstream.String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, upstream, seen)
	assert.Equal(t, upstream.String(), w.Header().Get(TraceHeader))
	assert.NotEmpty(t, w.Header().Get(SpanHeader))
}

func TestHTTPMiddlewareReplacesMalformedTrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, _ := observedTracer()
	defer tracer.Close()

	var seen id.TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/run", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	req.Header.Set(TraceHeader, "trace_upstream")
	req.Header.Set(SpanHeader, "not-a-span")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.True(t, strings.HasPrefix(seen.String(), id.TracePrefix+"_"), seen)
	assert.True(t, id.IsValid(w.Header().Get(TraceHeader)))
	assert.Equal(t, seen.String(), w.Header().Get(TraceHeader))
}
