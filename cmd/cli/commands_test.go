package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/crawlrun/internal/domain/failure"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunPrintsFailureEnvelope(t *testing.T) {
	out, err := execute(t, "", "run", "--url", "http://127.0.0.1/", "--code", "(text) => text")

	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, failure.InvalidRequest, exit.kind)

	var env map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "invalid_request", env["error"])
	assert.NotEmpty(t, env["error_description"])
}

func TestRunRejectsBadType(t *testing.T) {
	out, err := execute(t, "", "run", "--url", "https://example.com", "--code", "(t) => t", "--type", "deploy")

	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Contains(t, out, "deploy")
}

func TestRunRequiresCode(t *testing.T) {
	_, err := execute(t, "", "run", "--url", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--code")
}

func TestRunReadsCodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fn.js")
	require.NoError(t, os.WriteFile(path, []byte("(text) => text"), 0o644))

	out, err := execute(t, "", "run", "--url", "http://10.1.2.3/", "--code-file", path)
	require.Error(t, err)
	assert.Contains(t, out, "invalid_request", "code was read, so the run reached validation")
}

func TestRunReadsCodeFromStdin(t *testing.T) {
	out, err := execute(t, "(text) => text", "run", "--url", "http://192.168.0.1/", "--code-file", "-")
	require.Error(t, err)
	assert.Contains(t, out, "invalid_request")
}

func TestRemote(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/run", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"test","result":11}`))
	}))
	defer server.Close()

	out, err := execute(t, "", "remote", "--server", server.URL+"/",
		"--url", "https://example.com", "--code", "(text) => text.length", "--type", "test")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"type": "test", "url": "https://example.com", "code": "(text) => text.length"}, got)
	assert.JSONEq(t, `{"type":"test","result":11}`, out)
}

func TestRemoteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"execution_failed","error_description":"boom"}`))
	}))
	defer server.Close()

	out, err := execute(t, "", "remote", "--server", server.URL, "--url", "https://example.com", "--code", "(t) => t")

	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, failure.ExecutionFailed, exit.kind)
	assert.JSONEq(t, `{"error":"execution_failed","error_description":"boom"}`, out)
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	out, err := execute(t, "", "health", "--server", server.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy"}`, out)
}

func TestHealthRetriesUnavailableServer(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	out, err := execute(t, "", "health", "--server", server.URL, "--retries", "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy"}`, out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHealthReportsUnhealthyServer(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"starting"}`))
	}))
	defer server.Close()

	out, err := execute(t, "", "health", "--server", server.URL, "--retries", "1")

	var exit *exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.code)
	assert.JSONEq(t, `{"status":"starting"}`, out)
	assert.Equal(t, int32(2), calls.Load())
}
