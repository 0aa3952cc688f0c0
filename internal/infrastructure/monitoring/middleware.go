package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// Route templates keep label cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, time.Since(start), reqSize, respSize)
	}
}

// Timer measures a pipeline stage
type Timer struct {
	start   time.Time
	metrics *Metrics
	stage   string
}

// NewTimer creates a new timer. A nil metrics makes Stop a no-op.
func NewTimer(metrics *Metrics, stage string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		stage:   stage,
	}
}

// Stop records the elapsed time under outcome and returns it
func (t *Timer) Stop(outcome string) time.Duration {
	duration := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordStage(t.stage, outcome, duration)
	}
	return duration
}
