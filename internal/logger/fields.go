package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the ingestion job ID
	FieldJobID = "job_id"

	// FieldAttempt is the executor attempt number for a job
	FieldAttempt = "attempt"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Metric fields, attached to single entries for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldChunk is the 1-based chunk number within a job
	FieldChunk = "chunk"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
