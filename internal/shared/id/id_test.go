package id

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1.String(), id2.String())
	assert.Len(t, id1.String(), 26)
}

func TestTypedIDs(t *testing.T) {
	ids := map[string]string{
		RunPrefix:   NewRunID().String(),
		TracePrefix: NewTraceID().String(),
		SpanPrefix:  NewSpanID().String(),
	}

	for prefix, id := range ids {
		parts := strings.Split(id, "_")
		require.Len(t, parts, 2, id)
		assert.Equal(t, prefix, parts[0])
		assert.Len(t, parts[1], 26)
		assert.True(t, IsValid(id))
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(NewGenerator().GenerateString()))

	for _, id := range []string{"", "invalid", "run_", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		assert.False(t, IsValid(id), id)
	}
}

func TestMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen.GenerateString()
	}
	assert.IsIncreasing(t, ids)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	out := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				out <- gen.GenerateString()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]struct{}, goroutines*perGoroutine)
	for id := range out {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestDefaultGenerator(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(RunPrefix)
	}
}
