package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/domain/fetch"
	"github.com/GriffinCanCode/crawlrun/internal/domain/sandbox"
	"github.com/GriffinCanCode/crawlrun/internal/domain/target"
)

// Limits are the process-wide pipeline settings
type Limits struct {
	MaxCodeLength int
	FetchTimeout  time.Duration
	ExecTimeout   time.Duration
	PinResolved   bool
	UserAgent     string
}

// Build wires the production validator, fetcher and executor.
func Build(limits Limits, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	denylist := target.DefaultDenylist()
	validator := target.NewValidator(nil, denylist)

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Timeout = limits.FetchTimeout
	fetchCfg.PinResolved = limits.PinResolved
	fetchCfg.Denylist = denylist
	if limits.UserAgent != "" {
		fetchCfg.UserAgent = limits.UserAgent
	}
	fetcher := fetch.New(fetchCfg, logger.Named("fetch"))

	execCfg := sandbox.DefaultConfig()
	execCfg.Timeout = limits.ExecTimeout
	execCfg.MaxCodeLength = limits.MaxCodeLength
	executor := sandbox.NewExecutor(execCfg, logger.Named("sandbox"))

	return New(validator, fetcher, executor, limits.MaxCodeLength, logger.Named("pipeline"))
}
