// Package http holds the gin handlers of the HTTP surface.
//
// POST /run hands the raw body to the pipeline and writes either the success
// envelope or the error envelope. The remaining handlers describe the service
// and answer routing failures with the same error envelope.
package http
