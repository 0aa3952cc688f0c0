// Package id generates prefixed ULIDs for runs, requests and trace spans.
//
// IDs look like run_01HV3K... and sort by creation time, so log lines for
// one run group together and can be ordered without a timestamp field.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one pipeline execution
type RunID string

// TraceID identifies a trace
type TraceID string

// SpanID identifies a span within a trace
type SpanID string

const (
	RunPrefix   = "run"
	TracePrefix = "trace"
	SpanPrefix  = "span"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic, cryptographically secure
// entropy. IDs from the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRunID generates a new run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

func (id RunID) String() string   { return string(id) }
func (id TraceID) String() string { return string(id) }
func (id SpanID) String() string  { return string(id) }

// IsValid checks if an ID string is a valid ULID, with or without prefix
func IsValid(id string) bool {
	_, err := parse(id)
	return err == nil
}

func parse(id string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	return ulid.Parse(id)
}
