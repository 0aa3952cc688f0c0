package pipeline

import (
	"encoding/json"
	"net/url"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
)

// Mode is the request type echoed back in the response
type Mode string

const (
	ModeTest Mode = "test"
	ModeRun  Mode = "run"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeTest || m == ModeRun
}

// Request is the body of POST /run
type Request struct {
	Mode Mode   `json:"type"`
	URL  string `json:"url"`
	Code string `json:"code"`
}

// Response is the success envelope
type Response struct {
	Mode   Mode            `json:"type"`
	Result json.RawMessage `json:"result"`
}

// ParseRequest decodes and shape-checks a raw request body.
func ParseRequest(raw []byte, maxCodeLength int) (*Request, *url.URL, error) {
	var req Request
	if err := sonic.Unmarshal(raw, &req); err != nil {
		fe := failure.New(failure.StageParse, failure.CauseMalformed, "request body must be a JSON object with type, url and code")
		fe.Err = err
		return nil, nil, fe
	}

	u, err := req.Validate(maxCodeLength)
	if err != nil {
		return nil, nil, err
	}
	return &req, u, nil
}

// Validate checks required fields, the mode, the URL shape and the code
// length. maxCodeLength <= 0 disables the length check.
func (r *Request) Validate(maxCodeLength int) (*url.URL, error) {
	switch {
	case r.Mode == "":
		return nil, missing("type")
	case r.URL == "":
		return nil, missing("url")
	case r.Code == "":
		return nil, missing("code")
	}

	if !r.Mode.Valid() {
		return nil, failure.Newf(failure.StageParse, failure.CauseMalformed,
			"type must be %q or %q, got %q", ModeTest, ModeRun, r.Mode)
	}

	u, err := url.Parse(r.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		fe := failure.Newf(failure.StageParse, failure.CauseMalformed, "url must be an absolute URL: %q", r.URL)
		fe.Err = err
		return nil, fe
	}

	if maxCodeLength > 0 {
		if n := utf8.RuneCountInString(r.Code); n > maxCodeLength {
			return nil, failure.Newf(failure.StageParse, failure.CauseCodeTooLong,
				"code is %d characters, maximum is %d", n, maxCodeLength)
		}
	}

	return u, nil
}

func missing(field string) *failure.Error {
	return failure.Newf(failure.StageParse, failure.CauseMalformed, "missing required field: %s", field)
}
