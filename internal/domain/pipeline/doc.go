// Package pipeline sequences a run request through the target validator,
// the bounded fetcher and the sandbox executor.
//
// Each run moves linearly through
//
//	received -> parsed -> validated -> fetched -> executed -> responded
//
// and may fail from any non-terminal state. Nothing is retried. Failures
// come back as *failure.Error; panics are recovered as server_error. Runs
// share no state, so one Orchestrator serves concurrent requests.
package pipeline
