// Package main is the entry point for the crawlrun HTTP server.
//
// The server accepts POST /run requests carrying a target URL and a
// JavaScript function, fetches the target, runs the function against the
// fetched text in an isolated goja runtime and returns the JSON result.
//
// Configuration:
//   - Environment variables (PORT, LOG_LEVEL, MAX_CODE_LENGTH, ...)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000
//	./server -dev -log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
