package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
	"github.com/GriffinCanCode/crawlrun/internal/domain/pipeline"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/monitoring"
)

// Runner processes a raw /run request body
type Runner interface {
	Handle(ctx context.Context, raw []byte) (*pipeline.Response, *failure.Error)
}

// Limits are the limits advertised by the help endpoint
type Limits struct {
	MaxCodeLength   int
	MaxRequestBytes int64
	FetchTimeout    time.Duration
	ExecTimeout     time.Duration
}

// Policy is the sandbox and network policy advertised by the help endpoint
type Policy struct {
	Capabilities  []string // Globals visible to user code
	BlockedRanges []string // Address ranges a fetch may never reach
}

// Handlers contains all HTTP handlers
type Handlers struct {
	runner  Runner
	limits  Limits
	policy  Policy
	metrics *monitoring.Metrics
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(runner Runner, limits Limits, policy Policy, metrics *monitoring.Metrics) *Handlers {
	return &Handlers{
		runner:  runner,
		limits:  limits,
		policy:  policy,
		metrics: metrics,
	}
}

// Run handles POST /run
func (h *Handlers) Run(c *gin.Context) {
	body := c.Request.Body
	if h.limits.MaxRequestBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.limits.MaxRequestBytes)
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		fe := failure.New(failure.StageParse, failure.CauseMalformed, "request body could not be read")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fe = failure.Newf(failure.StageParse, failure.CauseMalformed,
				"request body exceeds %d bytes", tooLarge.Limit)
		}
		fe.Err = err
		writeFailure(c, fe)
		return
	}

	resp, fe := h.runner.Handle(c.Request.Context(), raw)
	if fe != nil {
		writeFailure(c, fe)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// endpoint describes one route in the help output
type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []endpoint{
	{"POST", "/run", `fetch "url" and call "code" with its text; body {"type","url","code"}`},
	{"GET", "/", "this description"},
	{"GET", "/help", "this description"},
	{"GET", "/health", "liveness"},
	{"GET", "/metrics", "Prometheus metrics"},
	{"HEAD", "*", "liveness"},
	{"OPTIONS", "*", "CORS preflight"},
}

// Help handles GET / and GET /help
func (h *Handlers) Help(c *gin.Context) {
	resp := gin.H{
		"service":   "crawlrun",
		"endpoints": endpoints,
		"limits": gin.H{
			"max_code_length":   h.limits.MaxCodeLength,
			"max_request_bytes": h.limits.MaxRequestBytes,
			"fetch_timeout_ms":  h.limits.FetchTimeout.Milliseconds(),
			"exec_timeout_ms":   h.limits.ExecTimeout.Milliseconds(),
		},
		"capabilities":   h.policy.Capabilities,
		"blocked_ranges": h.policy.BlockedRanges,
		"error_kinds":    failure.Kinds(),
	}
	if h.metrics != nil {
		resp["stats"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// NotFound answers unknown paths
func (h *Handlers) NotFound(c *gin.Context) {
	writeFailure(c, failure.Newf(failure.StageRouting, failure.CauseNotFound,
		"no route for %s %s", c.Request.Method, c.Request.URL.Path))
}

// MethodNotAllowed answers known paths requested with the wrong method
func (h *Handlers) MethodNotAllowed(c *gin.Context) {
	writeFailure(c, failure.Newf(failure.StageRouting, failure.CauseMethodNotAllowed,
		"method %s is not allowed on %s", c.Request.Method, c.Request.URL.Path))
}

func writeFailure(c *gin.Context, fe *failure.Error) {
	c.AbortWithStatusJSON(fe.Status(), fe.Envelope())
}
