package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
)

// errDeadline is the interrupt value used when the budget runs out.
var errDeadline = errors.New("execution deadline exceeded")

// Program is compiled user code ready to be invoked.
type Program struct {
	prog   *goja.Program
	length int
}

// Length returns the source length in characters
func (p *Program) Length() int {
	return p.length
}

// Compile checks the length of code and compiles it as a single expression.
// maxLength <= 0 disables the length check.
func Compile(code string, maxLength int) (*Program, error) {
	length := utf8.RuneCountInString(code)
	if maxLength > 0 && length > maxLength {
		return nil, failure.Newf(failure.StageExecute, failure.CauseCodeTooLong,
			"code exceeds maximum length of %d characters", maxLength)
	}

	source := strings.TrimRight(strings.TrimSpace(code), ";")
	if source == "" {
		return nil, failure.New(failure.StageExecute, failure.CauseCompile, "code is empty")
	}

	// The newline keeps a trailing line comment from swallowing the paren.
	prog, err := goja.Compile("code", "("+source+"\n)", false)
	if err != nil {
		return nil, failure.Wrap(failure.StageExecute, failure.CauseCompile, err)
	}
	return &Program{prog: prog, length: length}, nil
}

// Executor invokes programs under a time budget and a capability allowlist.
type Executor struct {
	config Config
	logger *zap.Logger
}

// NewExecutor creates an executor. Zero config fields take their defaults.
func NewExecutor(config Config, logger *zap.Logger) *Executor {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxCallStackSize <= 0 {
		config.MaxCallStackSize = defaults.MaxCallStackSize
	}
	if config.Capabilities.Len() == 0 {
		config.Capabilities = defaults.Capabilities
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{config: config, logger: logger}
}

// Config returns the executor configuration
func (e *Executor) Config() Config {
	return e.config
}

// Run compiles code and invokes it with input.
func (e *Executor) Run(ctx context.Context, code, input string) (*Result, error) {
	prog, err := Compile(code, e.config.MaxCodeLength)
	if err != nil {
		return nil, err
	}
	return e.Invoke(ctx, prog, input)
}

// Invoke evaluates prog in a fresh runtime and calls the resulting function
// with input as its only argument.
//
// The runtime is driven from its own goroutine. The interrupt unwinds
// ordinary loops, but goja does not observe it inside a regexp2 match, so
// the caller waits on the deadline as well and abandons a runtime that
// outlives it.
func (e *Executor) Invoke(ctx context.Context, prog *Program, input string) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	rt, err := newRuntime(e.config, e.config.Capabilities)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		value json.RawMessage
		async bool
		err   *failure.Error
	}
	done := make(chan outcome, 1)

	go func() {
		// Cleared only once the runtime has stopped, so an abandoned
		// runtime still unwinds at its next instruction.
		release := rt.interruptOn(ctx, errDeadline)
		defer release()
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: failure.Classify(fmt.Errorf("sandbox panic: %v", p))}
			}
		}()

		value, async, err := e.evaluate(ctx, rt, prog, input)
		if err != nil {
			done <- outcome{err: e.classify(ctx, rt, err)}
			return
		}
		done <- outcome{value: value, async: async}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		select {
		case o = <-done:
		default:
			e.logger.Warn("sandbox runtime abandoned after deadline",
				zap.Duration("timeout", e.config.Timeout),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil, e.timeout(ctx.Err())
		}
	}
	if o.err != nil {
		return nil, o.err
	}

	result := &Result{Value: o.value, Async: o.async, Duration: time.Since(start)}
	e.logger.Debug("sandbox invocation completed",
		zap.Bool("async", o.async),
		zap.Int("result_bytes", len(o.value)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// evaluate runs prog, calls its function, settles and serializes the result.
// It must run on the goroutine that owns rt.
func (e *Executor) evaluate(ctx context.Context, rt *runtime, prog *Program, input string) (json.RawMessage, bool, error) {
	value, err := rt.vm.RunProgram(prog.prog)
	if err != nil {
		return nil, false, err
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, false, failure.New(failure.StageExecute, failure.CauseRuntime,
			"code must evaluate to a function")
	}

	value, err = fn(goja.Undefined(), rt.vm.ToValue(input))
	if err != nil {
		return nil, false, err
	}

	value, async, err := rt.settle(ctx, value)
	if err != nil {
		return nil, async, err
	}

	raw, err := rt.serialize(value)
	if err != nil {
		return nil, async, err
	}
	return raw, async, nil
}

func (e *Executor) timeout(cause error) *failure.Error {
	fe := failure.Newf(failure.StageExecute, failure.CauseTimeout,
		"execution timed out after %s", e.config.Timeout)
	fe.Err = cause
	return fe
}

// classify maps goja failures onto execution causes. Once the deadline has
// passed every failure is a timeout, including one raised while reading a
// thrown value's message.
func (e *Executor) classify(ctx context.Context, rt *runtime, err error) *failure.Error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, errDeadline) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return e.timeout(err)
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return failure.New(failure.StageExecute, failure.CauseRuntime, "maximum call stack size exceeded")
	}

	var message string
	var thrown *thrownError
	var ex *goja.Exception
	switch {
	case errors.As(err, &thrown):
		message = thrown.message
	case errors.As(err, &ex):
		message = thrownMessage(rt.vm, ex.Value())
	default:
		return failure.Wrap(failure.StageExecute, failure.CauseRuntime, err)
	}

	if ctx.Err() != nil {
		return e.timeout(err)
	}
	return failure.New(failure.StageExecute, failure.CauseRuntime, message)
}
