package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
)

func newTestExecutor(timeout time.Duration) *Executor {
	config := DefaultConfig()
	config.Timeout = timeout
	return NewExecutor(config, nil)
}

func requireKind(t *testing.T, err error, kind failure.Kind) *failure.Error {
	t.Helper()
	fe := failure.Classify(err)
	require.NotNil(t, fe, "expected an error")
	require.Equal(t, kind, fe.Kind, "message: %s", fe.Message)
	return fe
}

func TestExecutorRun(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	tests := []struct {
		name  string
		code  string
		input string
		want  string
		async bool
	}{
		{"length", "(text) => text.length", "hello world", "11", false},
		{"uppercase", "(text) => text.toUpperCase()", "hello world", `"HELLO WORLD"`, false},
		{"async split", `async (text) => text.split(" ")`, "async test", `["async","test"]`, true},
		{"object", "(text) => ({ chars: text.length, words: text.split(' ').length })", "a b c", `{"chars":5,"words":3}`, false},
		{"undefined", "(text) => undefined", "x", "null", false},
		{"function expression", "function (text) { return text + '!' }", "hi", `"hi!"`, false},
		{"math", "() => Math.sqrt(16)", "", "4", false},
		{"json", `(text) => JSON.parse(text).items.map(i => i * 2)`, `{"items":[1,2,3]}`, "[2,4,6]", false},
		{"regexp", `(text) => text.match(/\d+/g)`, "a1b22c333", `["1","22","333"]`, false},
		{"map and set", "(text) => [...new Set(text.split(''))].length", "hello", "4", false},
		{"awaited promise chain", "async (text) => { const n = await Promise.resolve(text.length); return n * 2 }", "abc", "6", true},
		{"trailing semicolon", "(text) => text;", "ok", `"ok"`, false},
		{"trailing comment", "(text) => text // identity", "ok", `"ok"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.Run(context.Background(), tt.code, tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(result.Value))
			assert.Equal(t, tt.async, result.Async)
		})
	}
}

func TestExecutorDeterministic(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	for i := 0; i < 5; i++ {
		result, err := executor.Run(context.Background(), "(text) => text.toUpperCase()", "hello world")
		require.NoError(t, err)
		assert.Equal(t, `"HELLO WORLD"`, string(result.Value))
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("(((invalid syntax", 10000)
	fe := requireKind(t, err, failure.ExecutionFailed)
	assert.Equal(t, failure.CauseCompile, fe.Cause)
	assert.NotEmpty(t, fe.Message)

	_, err = Compile("   ", 10000)
	requireKind(t, err, failure.ExecutionFailed)

	_, err = Compile(strings.Repeat("x", 10001), 10000)
	fe = requireKind(t, err, failure.InvalidRequest)
	assert.Equal(t, failure.CauseCodeTooLong, fe.Cause)
}

func TestCompileCountsCharacters(t *testing.T) {
	// Multi-byte characters count once.
	code := "() => 'éééé'"
	prog, err := Compile(code, len([]rune(code)))
	require.NoError(t, err)
	assert.Equal(t, len([]rune(code)), prog.Length())
}

func TestExecutorThrownErrors(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	tests := []struct {
		name string
		code string
		want string
	}{
		{"error object", `(text) => { throw new Error("boom") }`, "boom"},
		{"type error", `(text) => null.length`, "length"},
		{"thrown string", `(text) => { throw "plain failure" }`, "plain failure"},
		{"rejected promise", `async (text) => { throw new RangeError("async boom") }`, "async boom"},
		{"not a function", "42", "must evaluate to a function"},
		{"missing capability", "(text) => require('fs')", "require"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executor.Run(context.Background(), tt.code, "input")
			fe := requireKind(t, err, failure.ExecutionFailed)
			assert.Equal(t, 422, fe.Status())
			assert.Contains(t, fe.Message, tt.want)
			assert.NotContains(t, fe.Message, "at code:", "no host stack in description")
		})
	}
}

func TestExecutorSyncTimeout(t *testing.T) {
	executor := newTestExecutor(100 * time.Millisecond)

	start := time.Now()
	_, err := executor.Run(context.Background(), `(text) => { let i = 0; while (true) { i++ } }`, "x")
	elapsed := time.Since(start)

	fe := requireKind(t, err, failure.ExecutionTimeout)
	assert.Equal(t, 422, fe.Status())
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecutorAsyncTimeout(t *testing.T) {
	executor := newTestExecutor(100 * time.Millisecond)

	start := time.Now()
	_, err := executor.Run(context.Background(), `async (text) => { await new Promise(() => {}); return text }`, "x")
	elapsed := time.Since(start)

	requireKind(t, err, failure.ExecutionTimeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecutorTimeoutInsidePromiseJob(t *testing.T) {
	executor := newTestExecutor(100 * time.Millisecond)

	_, err := executor.Run(context.Background(), `async (text) => { await null; while (true) {} }`, "x")
	requireKind(t, err, failure.ExecutionTimeout)
}

func TestExecutorTimeoutWhileEvaluating(t *testing.T) {
	executor := newTestExecutor(100 * time.Millisecond)

	_, err := executor.Run(context.Background(), `(() => { for (;;) {} })()`, "x")
	requireKind(t, err, failure.ExecutionTimeout)
}

func TestExecutorTimeoutInsideRegexpBacktracking(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	config := DefaultConfig()
	config.Timeout = 100 * time.Millisecond
	executor := NewExecutor(config, zap.New(core))

	start := time.Now()
	_, err := executor.Run(context.Background(),
		`(text) => /^(a+)+(?!x)$/.test("a".repeat(26) + "b")`, "x")
	elapsed := time.Since(start)

	requireKind(t, err, failure.ExecutionTimeout)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, logs.FilterMessage("sandbox runtime abandoned after deadline").Len())
}

func TestExecutorTimeoutInsideThrownMessageGetter(t *testing.T) {
	executor := newTestExecutor(200 * time.Millisecond)

	start := time.Now()
	_, err := executor.Run(context.Background(),
		`() => { throw { get message() { while (true) {} } } }`, "x")
	elapsed := time.Since(start)

	requireKind(t, err, failure.ExecutionTimeout)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecutorCapabilities(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	code := `() => ({
		require: typeof require,
		setTimeout: typeof setTimeout,
		eval: typeof eval,
		Function: typeof Function,
		globalThis: typeof globalThis,
		console: typeof console,
		Proxy: typeof Proxy,
		Reflect: typeof Reflect,
		Math: typeof Math,
		JSON: typeof JSON,
		Promise: typeof Promise,
		parseInt: typeof parseInt,
		decodeURIComponent: typeof decodeURIComponent,
	})`

	result, err := executor.Run(context.Background(), code, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"require": "undefined",
		"setTimeout": "undefined",
		"eval": "undefined",
		"Function": "undefined",
		"globalThis": "undefined",
		"console": "undefined",
		"Proxy": "undefined",
		"Reflect": "undefined",
		"Math": "object",
		"JSON": "object",
		"Promise": "function",
		"parseInt": "function",
		"decodeURIComponent": "function"
	}`, string(result.Value))
}

func TestExecutorCustomCapabilities(t *testing.T) {
	config := DefaultConfig()
	config.Timeout = 2 * time.Second
	config.Capabilities = NewCapabilities("String")
	executor := NewExecutor(config, nil)

	result, err := executor.Run(context.Background(), "(text) => [typeof Math, typeof JSON, typeof String]", "")
	require.NoError(t, err)
	assert.JSONEq(t, `["undefined","undefined","function"]`, string(result.Value))
}

func TestExecutorUsesIntrinsicStringify(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	result, err := executor.Run(context.Background(),
		`(text) => { JSON.stringify = () => '"hijacked"'; return { ok: true } }`, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result.Value))
}

func TestExecutorUnserializableResult(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	_, err := executor.Run(context.Background(), `() => { const a = {}; a.self = a; return a }`, "")
	requireKind(t, err, failure.ExecutionFailed)
}

func TestExecutorStackOverflow(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	_, err := executor.Run(context.Background(), `() => { const f = (n) => f(n + 1); return f(0) }`, "")
	fe := requireKind(t, err, failure.ExecutionFailed)
	assert.Contains(t, fe.Message, "call stack")
}

func TestExecutorRuntimesAreIsolated(t *testing.T) {
	executor := newTestExecutor(2 * time.Second)

	_, err := executor.Run(context.Background(), `() => { Object.prototype.polluted = "yes"; return 1 }`, "")
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), `() => ({}).polluted`, "")
	require.NoError(t, err)
	assert.Equal(t, "null", string(result.Value))
}

func TestCapabilities(t *testing.T) {
	caps := DefaultCapabilities()

	assert.True(t, caps.Allows("Math"))
	assert.True(t, caps.Allows("undefined"))
	assert.False(t, caps.Allows("eval"))
	assert.False(t, caps.Allows("Function"))

	names := caps.Names()
	assert.Equal(t, caps.Len(), len(names))
	assert.IsNonDecreasing(t, names)

	var zero Capabilities
	assert.False(t, zero.Allows("Math"))
	assert.Empty(t, zero.Names())
}
