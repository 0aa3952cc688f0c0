// Package failure classifies every failure of the execution pipeline.
//
// Components return *Error values tagged with the Stage they ran in and the
// Cause they observed. The classifier maps each (Stage, Cause) pair onto one
// of a fixed set of kinds with an HTTP status:
//
//	invalid_request     400  malformed request, bad scheme, blocked address
//	fetch_failed        502  DNS or network failure
//	fetch_timeout       504  target did not answer in time
//	execution_failed    422  compile or runtime error in user code
//	execution_timeout   422  user code exceeded its budget
//	not_found           404  unknown route
//	method_not_allowed  405  known route, wrong method
//	server_error        500  anything unanticipated
//
// Only the kind and a truncated description ever leave the process, through
// Envelope.
package failure
