package sandbox

import (
	"encoding/json"
	"sort"
	"time"
)

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Execution budget, sync and async
	MaxCodeLength    int           // Maximum source length in characters
	MaxCallStackSize int           // goja call stack limit
	Capabilities     Capabilities  // Globals left in the runtime
}

// DefaultConfig returns the production sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCodeLength:    10000,
		MaxCallStackSize: 1024,
		Capabilities:     DefaultCapabilities(),
	}
}

// Result holds execution result
type Result struct {
	Value    json.RawMessage // JSON serialization of the returned value
	Async    bool            // The function returned a promise
	Duration time.Duration   // Execution time
}

// defaultCapabilities are the pure, side-effect free globals.
var defaultCapabilities = []string{
	// values
	"undefined", "NaN", "Infinity",
	// constructors and namespaces
	"Object", "Array", "String", "Number", "Boolean", "Symbol", "BigInt",
	"Date", "Math", "JSON", "RegExp", "Promise",
	"Map", "Set", "WeakMap", "WeakSet",
	// errors
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError",
	"EvalError", "URIError",
	// functions
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"encodeURIComponent", "decodeURIComponent", "encodeURI", "decodeURI",
}

// Capabilities is the immutable set of global names a runtime keeps.
type Capabilities struct {
	names map[string]struct{}
}

// NewCapabilities creates a capability set from global names
func NewCapabilities(names ...string) Capabilities {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return Capabilities{names: set}
}

// DefaultCapabilities returns the standard allowlist
func DefaultCapabilities() Capabilities {
	return NewCapabilities(defaultCapabilities...)
}

// Allows reports whether the global name survives runtime setup
func (c Capabilities) Allows(name string) bool {
	_, ok := c.names[name]
	return ok
}

// Names returns the allowed globals sorted
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of allowed globals
func (c Capabilities) Len() int {
	return len(c.names)
}
