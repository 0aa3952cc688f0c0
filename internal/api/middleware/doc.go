// Package middleware holds the gin middleware of the HTTP surface: CORS,
// per-IP rate limiting and panic recovery.
package middleware
