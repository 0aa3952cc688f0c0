package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/shared/id"
)

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		_, err := parseLevel(level)
		assert.NoError(t, err, level)
	}

	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.With(zap.String("run_id", "run_test")).Info("run finished", zap.Int("status", 200))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"message":"run finished"`)
	assert.Contains(t, out, `"run_id":"run_test"`)
	assert.Contains(t, out, `"mode":"test"`)
	assert.NotContains(t, out, "hidden")
}

func TestFallbacks(t *testing.T) {
	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewDevelopment())
	assert.NotNil(t, NewNop().Named("x"))
}

func TestRunFields(t *testing.T) {
	fields := RunFields(id.RunID("run_1"), "")
	require.Len(t, fields, 1)
	assert.Equal(t, "run_id", fields[0].Key)

	fields = RunFields(id.RunID("run_1"), id.TraceID("trace_1"))
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[1].Key)
	assert.Equal(t, "trace_1", fields[1].String)
}
