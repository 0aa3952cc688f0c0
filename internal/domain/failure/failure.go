package failure

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// MaxDescriptionLength bounds the description sent to callers.
const MaxDescriptionLength = 512

// Kind is the externally visible error category.
type Kind string

const (
	InvalidRequest   Kind = "invalid_request"
	FetchFailed      Kind = "fetch_failed"
	FetchTimeout     Kind = "fetch_timeout"
	ExecutionFailed  Kind = "execution_failed"
	ExecutionTimeout Kind = "execution_timeout"
	NotFound         Kind = "not_found"
	MethodNotAllowed Kind = "method_not_allowed"
	ServerError      Kind = "server_error"
)

// Status returns the HTTP status for the kind
func (k Kind) Status() int {
	switch k {
	case InvalidRequest:
		return http.StatusBadRequest
	case FetchFailed:
		return http.StatusBadGateway
	case FetchTimeout:
		return http.StatusGatewayTimeout
	case ExecutionFailed, ExecutionTimeout:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case MethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Kinds lists every kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		InvalidRequest, FetchFailed, FetchTimeout, ExecutionFailed,
		ExecutionTimeout, NotFound, MethodNotAllowed, ServerError,
	}
}

// Stage is the pipeline step a failure was observed in.
type Stage string

const (
	StageParse    Stage = "parse"
	StageValidate Stage = "validate"
	StageFetch    Stage = "fetch"
	StageExecute  Stage = "execute"
	StageRouting  Stage = "routing"
	StageInternal Stage = "internal"
)

// Cause is what went wrong inside a stage.
type Cause string

const (
	CauseMalformed        Cause = "malformed"
	CauseCodeTooLong      Cause = "code_too_long"
	CauseBadScheme        Cause = "bad_scheme"
	CauseBlockedAddress   Cause = "blocked_address"
	CauseResolution       Cause = "resolution"
	CauseTimeout          Cause = "timeout"
	CauseNetwork          Cause = "network"
	CauseCompile          Cause = "compile"
	CauseRuntime          Cause = "runtime"
	CauseNotFound         Cause = "not_found"
	CauseMethodNotAllowed Cause = "method_not_allowed"
	CauseUnexpected       Cause = "unexpected"
)

// classification is the single (stage, cause) -> kind table.
var classification = map[Stage]map[Cause]Kind{
	StageParse: {
		CauseMalformed:   InvalidRequest,
		CauseCodeTooLong: InvalidRequest,
	},
	StageValidate: {
		CauseMalformed:      InvalidRequest,
		CauseBadScheme:      InvalidRequest,
		CauseBlockedAddress: InvalidRequest,
		CauseResolution:     FetchFailed,
	},
	StageFetch: {
		CauseTimeout:        FetchTimeout,
		CauseNetwork:        FetchFailed,
		CauseResolution:     FetchFailed,
		CauseBlockedAddress: InvalidRequest,
	},
	StageExecute: {
		CauseCodeTooLong: InvalidRequest,
		CauseCompile:     ExecutionFailed,
		CauseRuntime:     ExecutionFailed,
		CauseTimeout:     ExecutionTimeout,
	},
	StageRouting: {
		CauseNotFound:         NotFound,
		CauseMethodNotAllowed: MethodNotAllowed,
	},
}

// KindOf maps a stage and cause onto a kind. Unknown pairs are server errors.
func KindOf(stage Stage, cause Cause) Kind {
	if causes, ok := classification[stage]; ok {
		if kind, ok := causes[cause]; ok {
			return kind
		}
	}
	return ServerError
}

// Error is a classified pipeline failure.
type Error struct {
	Stage   Stage
	Cause   Cause
	Kind    Kind
	Message string
	Err     error
}

// New creates a classified error with a plain message.
func New(stage Stage, cause Cause, message string) *Error {
	return &Error{
		Stage:   stage,
		Cause:   cause,
		Kind:    KindOf(stage, cause),
		Message: Truncate(message),
	}
}

// Newf is New with formatting.
func Newf(stage Stage, cause Cause, format string, args ...interface{}) *Error {
	return New(stage, cause, fmt.Sprintf(format, args...))
}

// Wrap classifies err. The message is taken from err.
func Wrap(stage Stage, cause Cause, err error) *Error {
	e := New(stage, cause, err.Error())
	e.Err = err
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Stage, e.Cause, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status of the error's kind
func (e *Error) Status() int {
	return e.Kind.Status()
}

// Envelope is the only error shape that crosses the response boundary.
type Envelope struct {
	Error       Kind   `json:"error"`
	Description string `json:"error_description"`
}

// Envelope builds the response body for e
func (e *Error) Envelope() Envelope {
	return Envelope{Error: e.Kind, Description: e.Message}
}

// Classify converts any error into an *Error. Errors that were not
// classified by a component become server errors with a generic message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	e := New(StageInternal, CauseUnexpected, "internal server error")
	e.Err = err
	return e
}

// Truncate shortens s to MaxDescriptionLength runes.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxDescriptionLength-3]) + "..."
}
