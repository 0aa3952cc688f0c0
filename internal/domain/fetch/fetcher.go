package fetch

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
	"github.com/GriffinCanCode/crawlrun/internal/domain/target"
)

// Config defines fetch behavior
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxRedirects int
	// PinResolved makes the transport connect only to the addresses the
	// validator approved and re-checks every connection against Denylist.
	PinResolved bool
	Denylist    *target.Denylist
}

// DefaultConfig returns the production fetch configuration
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		UserAgent:    "crawlrun/1.0",
		MaxRedirects: 5,
		PinResolved:  true,
		Denylist:     target.DefaultDenylist(),
	}
}

// Outcome is a completed fetch. Status is reported, never validated.
type Outcome struct {
	Body        string
	Status      int
	ContentType string
	Charset     string
	Size        int
	Duration    time.Duration
}

// Fetcher performs single bounded GET requests.
type Fetcher struct {
	client *resty.Client
	config Config
	logger *zap.Logger
}

// New creates a fetcher on top of resty and a go-cleanhttp pooled transport.
// Retries are disabled: no fetch is ever repeated.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultConfig().MaxRedirects
	}

	transport := cleanhttp.DefaultPooledTransport()
	// An egress proxy would connect on our behalf and bypass the dial guard.
	transport.Proxy = nil

	var denylist *target.Denylist
	if cfg.PinResolved {
		denylist = cfg.Denylist
		if denylist == nil {
			denylist = target.DefaultDenylist()
		}
	}
	transport.DialContext = newGuardedDialer(denylist).DialContext

	client := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(cfg.MaxRedirects)).
		SetLogger(logger.Sugar())
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Fetcher{client: client, config: cfg, logger: logger}
}

// Fetch GETs t.URL and returns the body as text.
func (f *Fetcher) Fetch(ctx context.Context, t *target.Target) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	if f.config.PinResolved {
		ctx = withPin(ctx, t)
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(t.URL.String())
	if err != nil {
		fe := f.classify(ctx, t, err)
		f.logger.Debug("fetch failed",
			zap.String("host", t.Host),
			zap.String("cause", string(fe.Cause)),
			zap.Error(err),
		)
		return nil, fe
	}

	body := resp.Body()
	contentType := contentTypeOf(resp.Header().Get("Content-Type"), body)
	text, charsetName := decodeText(body, contentType)

	return &Outcome{
		Body:        text,
		Status:      resp.StatusCode(),
		ContentType: contentType,
		Charset:     charsetName,
		Size:        len(body),
		Duration:    time.Since(start),
	}, nil
}

// classify maps transport errors onto fetch causes.
func (f *Fetcher) classify(ctx context.Context, t *target.Target, err error) *failure.Error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		fe = failure.Newf(failure.StageFetch, failure.CauseTimeout,
			"fetching %s timed out after %s", t.Host, f.config.Timeout)
		fe.Err = err
		return fe
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failure.Wrap(failure.StageFetch, failure.CauseResolution, err)
	}

	return failure.Wrap(failure.StageFetch, failure.CauseNetwork, err)
}
