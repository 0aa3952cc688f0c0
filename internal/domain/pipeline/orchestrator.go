package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
	"github.com/GriffinCanCode/crawlrun/internal/domain/fetch"
	"github.com/GriffinCanCode/crawlrun/internal/domain/sandbox"
	"github.com/GriffinCanCode/crawlrun/internal/domain/target"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/logging"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/crawlrun/internal/shared/id"
)

// Validator checks a target URL
type Validator interface {
	Validate(ctx context.Context, u *url.URL) (*target.Target, error)
}

// Fetcher retrieves a validated target
type Fetcher interface {
	Fetch(ctx context.Context, t *target.Target) (*fetch.Outcome, error)
}

// Executor runs user code against fetched text
type Executor interface {
	Run(ctx context.Context, code, input string) (*sandbox.Result, error)
}

// Orchestrator sequences one request through validation, fetch and
// execution. It holds no per-request state.
type Orchestrator struct {
	validator     Validator
	fetcher       Fetcher
	executor      Executor
	maxCodeLength int
	logger        *zap.Logger
	metrics       *monitoring.Metrics
	tracer        *tracing.Tracer
}

// New creates an orchestrator
func New(validator Validator, fetcher Fetcher, executor Executor, maxCodeLength int, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		validator:     validator,
		fetcher:       fetcher,
		executor:      executor,
		maxCodeLength: maxCodeLength,
		logger:        logger,
	}
}

// WithMetrics adds metrics tracking to the orchestrator
func (o *Orchestrator) WithMetrics(metrics *monitoring.Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// WithTracer adds per-stage spans to the orchestrator
func (o *Orchestrator) WithTracer(tracer *tracing.Tracer) *Orchestrator {
	o.tracer = tracer
	return o
}

// run is the bookkeeping of a single request.
type run struct {
	id      id.RunID
	mode    Mode
	host    string
	start   time.Time
	machine *machine
	logger  *zap.Logger
}

// Handle processes a raw request body.
func (o *Orchestrator) Handle(ctx context.Context, raw []byte) (*Response, *failure.Error) {
	return o.process(ctx, func() (*Request, *url.URL, error) {
		return ParseRequest(raw, o.maxCodeLength)
	})
}

// Execute processes an already decoded request.
func (o *Orchestrator) Execute(ctx context.Context, req *Request) (*Response, *failure.Error) {
	return o.process(ctx, func() (*Request, *url.URL, error) {
		if req == nil {
			return nil, nil, failure.New(failure.StageParse, failure.CauseMalformed, "request is required")
		}
		u, err := req.Validate(o.maxCodeLength)
		return req, u, err
	})
}

func (o *Orchestrator) process(ctx context.Context, parse func() (*Request, *url.URL, error)) (resp *Response, fe *failure.Error) {
	// Only the stage timeouts cancel work, never the caller.
	ctx = context.WithoutCancel(ctx)

	runID := id.NewRunID()
	r := &run{
		id:      runID,
		start:   time.Now(),
		machine: newMachine(),
		logger:  o.logger.With(logging.RunFields(runID, tracing.GetTraceID(ctx))...),
	}

	if o.metrics != nil {
		defer o.metrics.TrackInFlight()()
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("pipeline panic",
				zap.String("state", string(r.machine.state)),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			resp = nil
			fe = failure.Classify(fmt.Errorf("panic in %s state: %v", r.machine.state, p))
		}
		o.finish(r, fe)
	}()

	resp, err := o.steps(ctx, r, parse)
	if err != nil {
		return nil, failure.Classify(err)
	}
	return resp, nil
}

// steps runs the linear state machine. Any error is terminal.
func (o *Orchestrator) steps(ctx context.Context, r *run, parse func() (*Request, *url.URL, error)) (*Response, error) {
	var (
		req     *Request
		u       *url.URL
		tgt     *target.Target
		outcome *fetch.Outcome
		result  *sandbox.Result
	)

	err := o.stage(ctx, r, failure.StageParse, StateParsed, func(ctx context.Context) (err error) {
		req, u, err = parse()
		if err != nil {
			return err
		}
		r.mode = req.Mode
		r.host = u.Hostname()
		r.logger = r.logger.With(zap.String("mode", string(req.Mode)), zap.String("host", r.host))
		if o.metrics != nil {
			o.metrics.RecordCode(len([]rune(req.Code)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.stage(ctx, r, failure.StageValidate, StateValidated, func(ctx context.Context) (err error) {
		tgt, err = o.validator.Validate(ctx, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = o.stage(ctx, r, failure.StageFetch, StateFetched, func(ctx context.Context) (err error) {
		outcome, err = o.fetcher.Fetch(ctx, tgt)
		if err != nil {
			return err
		}
		r.logger.Debug("target fetched",
			zap.Int("status", outcome.Status),
			zap.Int("size", outcome.Size),
			zap.String("content_type", outcome.ContentType),
			zap.String("charset", outcome.Charset),
			zap.Duration("duration", outcome.Duration),
		)
		if o.metrics != nil {
			o.metrics.RecordFetch(outcome.Size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = o.stage(ctx, r, failure.StageExecute, StateExecuted, func(ctx context.Context) (err error) {
		result, err = o.executor.Run(ctx, req.Code, outcome.Body)
		if err != nil {
			return err
		}
		if result.Async && o.metrics != nil {
			o.metrics.IncAsyncResults()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := r.machine.advance(StateResponded); err != nil {
		return nil, err
	}
	return &Response{Mode: req.Mode, Result: result.Value}, nil
}

// stage runs fn under a timer and a span, then advances the run to next.
func (o *Orchestrator) stage(ctx context.Context, r *run, stage failure.Stage, next State, fn func(context.Context) error) error {
	timer := monitoring.NewTimer(o.metrics, string(stage))

	var span *tracing.Span
	if o.tracer != nil {
		span, ctx = o.tracer.StartSpan(ctx, "pipeline."+string(stage))
		span.SetTag("run_id", r.id.String())
	}

	err := fn(ctx)

	outcome := "ok"
	if err != nil {
		outcome = string(failure.Classify(err).Kind)
	}
	elapsed := timer.Stop(outcome)

	if span != nil {
		if r.host != "" {
			span.SetTag("host", r.host)
		}
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
		o.tracer.Submit(span)
	}

	if err != nil {
		return err
	}

	if err := r.machine.advance(next); err != nil {
		return err
	}
	r.logger.Debug("state transition",
		zap.String("stage", string(stage)),
		zap.String("state", string(next)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// finish logs and records the run outcome
func (o *Orchestrator) finish(r *run, fe *failure.Error) {
	duration := time.Since(r.start)
	mode := string(r.mode)
	if mode == "" {
		mode = "unknown"
	}

	if fe == nil {
		r.logger.Info("run completed", zap.Duration("duration", duration))
		if o.metrics != nil {
			o.metrics.RecordRun(mode, "ok", duration)
		}
		return
	}

	if !r.machine.state.Terminal() {
		_ = r.machine.advance(StateFailed)
	}

	fields := []zap.Field{
		zap.String("stage", string(fe.Stage)),
		zap.String("cause", string(fe.Cause)),
		zap.String("kind", string(fe.Kind)),
		zap.Int("status", fe.Status()),
		zap.String("message", fe.Message),
		zap.Duration("duration", duration),
	}
	if fe.Kind == failure.ServerError {
		r.logger.Error("run failed", append(fields, zap.Error(fe.Err))...)
	} else {
		r.logger.Info("run failed", fields...)
	}
	if o.metrics != nil {
		o.metrics.RecordRun(mode, string(fe.Kind), duration)
	}
}
