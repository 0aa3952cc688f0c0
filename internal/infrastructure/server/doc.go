// Package server assembles the HTTP surface: gin router, middleware chain,
// pipeline wiring, gzip compression and graceful shutdown.
package server
