package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates a collaborator is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Controller errors
const (
	// ErrCodeDuplicateField indicates a field name collision in a controller.
	ErrCodeDuplicateField ErrorCode = "DUPLICATE_FIELD"
	// ErrCodeTypeViolation indicates a value does not conform to its field type.
	ErrCodeTypeViolation ErrorCode = "TYPE_VIOLATION"
)

// Pipeline definition errors
const (
	// ErrCodeLinkError indicates an invalid link (missing end, bad direction, type mismatch).
	ErrCodeLinkError ErrorCode = "LINK_ERROR"
	// ErrCodeExportError indicates a conflicting parameter export.
	ErrCodeExportError ErrorCode = "EXPORT_ERROR"
	// ErrCodeDefinitionFrozen indicates a structural change outside the definition phase.
	ErrCodeDefinitionFrozen ErrorCode = "DEFINITION_FROZEN"
)

// Compilation errors
const (
	// ErrCodeCycle indicates a non-iterative cycle in the job graph.
	ErrCodeCycle ErrorCode = "CYCLE"
	// ErrCodeUnsatisfiedInput indicates mandatory inputs with no value and no producer.
	ErrCodeUnsatisfiedInput ErrorCode = "UNSATISFIED_INPUT"
	// ErrCodeMissingOutputPath indicates an undefined file output with no temporary policy.
	ErrCodeMissingOutputPath ErrorCode = "MISSING_OUTPUT_PATH"
	// ErrCodeIterationShape indicates iterative inputs of inconsistent lengths.
	ErrCodeIterationShape ErrorCode = "ITERATION_SHAPE"
)

// Completion errors
const (
	// ErrCodeUnknownAttribute indicates an attribute missing from its schema.
	ErrCodeUnknownAttribute ErrorCode = "UNKNOWN_ATTRIBUTE"
	// ErrCodeDuplicateAttributeBinding indicates attributes bound twice on one parameter.
	ErrCodeDuplicateAttributeBinding ErrorCode = "DUPLICATE_ATTRIBUTE_BINDING"
)

// Execution errors
const (
	// ErrCodeContextConflict indicates overlapping nested execution contexts.
	ErrCodeContextConflict ErrorCode = "CONTEXT_CONFLICT"
	// ErrCodeJobFailure indicates a job returned a non-zero code.
	ErrCodeJobFailure ErrorCode = "JOB_FAILURE"
	// ErrCodeCancelled indicates the workflow was cancelled.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeDatabaseError indicates a metadata store error.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeDatabaseError:      true,
	ErrCodeJobFailure:         true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
