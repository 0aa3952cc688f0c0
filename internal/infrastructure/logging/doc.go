// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.With(logging.RunFields(runID, traceID)...).Debug("fetched", zap.Int("status", 200))
package logging
