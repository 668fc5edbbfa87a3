package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// DuplicateField reports a field name already registered on a controller.
func DuplicateField(name string) *AppError {
	return &AppError{
		Code: ErrCodeDuplicateField, Message: fmt.Sprintf("field %q already exists", name),
		HTTPStatus: http.StatusConflict, Details: map[string]any{"field": name},
	}
}

// TypeViolation reports a value that does not conform to the field type.
func TypeViolation(name, want string, got any) *AppError {
	return &AppError{
		Code:       ErrCodeTypeViolation,
		Message:    fmt.Sprintf("field %q expects %s, got %T", name, want, got),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": name, "type": want},
	}
}

// LinkError reports an invalid link definition.
func LinkError(link, reason string) *AppError {
	return &AppError{
		Code: ErrCodeLinkError, Message: fmt.Sprintf("cannot link %s: %s", link, reason),
		HTTPStatus: http.StatusBadRequest, Details: map[string]any{"link": link},
	}
}

// ExportError reports a conflicting pipeline parameter export.
func ExportError(param, reason string) *AppError {
	return &AppError{
		Code: ErrCodeExportError, Message: fmt.Sprintf("cannot export %q: %s", param, reason),
		HTTPStatus: http.StatusConflict, Details: map[string]any{"parameter": param},
	}
}

// DefinitionFrozen reports a structural change attempted after definition.
func DefinitionFrozen(op string) *AppError {
	return &AppError{
		Code:       ErrCodeDefinitionFrozen,
		Message:    fmt.Sprintf("%s is only allowed during pipeline definition or Edit", op),
		HTTPStatus: http.StatusConflict, Details: map[string]any{"operation": op},
	}
}

// Cycle reports a cycle among the listed nodes or jobs.
func Cycle(nodes []string) *AppError {
	return &AppError{
		Code: ErrCodeCycle, Message: fmt.Sprintf("cycle detected among %s", strings.Join(nodes, ", ")),
		HTTPStatus: http.StatusUnprocessableEntity, Details: map[string]any{"nodes": nodes},
	}
}

// UnsatisfiedInput reports mandatory (node, plug) inputs with neither a value nor a producer.
func UnsatisfiedInput(offenders [][2]string) *AppError {
	parts := make([]string, len(offenders))
	for i, o := range offenders {
		parts[i] = o[0] + "." + o[1]
	}
	return &AppError{
		Code:       ErrCodeUnsatisfiedInput,
		Message:    fmt.Sprintf("mandatory inputs not satisfied: %s", strings.Join(parts, ", ")),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"offenders": offenders},
	}
}

// MissingOutputPath reports an exported file output left undefined.
func MissingOutputPath(param string) *AppError {
	return &AppError{
		Code:       ErrCodeMissingOutputPath,
		Message:    fmt.Sprintf("pipeline output %q has no path and no temporary policy", param),
		HTTPStatus: http.StatusUnprocessableEntity, Details: map[string]any{"parameter": param},
	}
}

// IterationShape reports iterative inputs whose lengths differ.
func IterationShape(node string, lengths map[string]int) *AppError {
	return &AppError{
		Code:       ErrCodeIterationShape,
		Message:    fmt.Sprintf("iterative inputs of %q have inconsistent lengths %v", node, lengths),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"node": node, "lengths": lengths},
	}
}

// UnknownAttribute reports an attribute that is not part of the schema.
func UnknownAttribute(name string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownAttribute, Message: fmt.Sprintf("unknown attribute %q", name),
		HTTPStatus: http.StatusBadRequest, Details: map[string]any{"attribute": name},
	}
}

// DuplicateAttributeBinding reports attributes set twice on one parameter.
func DuplicateAttributeBinding(param string) *AppError {
	return &AppError{
		Code:       ErrCodeDuplicateAttributeBinding,
		Message:    fmt.Sprintf("attributes already set for parameter %q", param),
		HTTPStatus: http.StatusConflict, Details: map[string]any{"parameter": param},
	}
}

// ContextConflict reports entries shared by two nested execution contexts.
func ContextConflict(keys []string) *AppError {
	return &AppError{
		Code:       ErrCodeContextConflict,
		Message:    fmt.Sprintf("execution context overlaps an active context on %s", strings.Join(keys, ", ")),
		HTTPStatus: http.StatusConflict, Details: map[string]any{"keys": keys},
	}
}

// JobFailure reports a job that exited with a non-zero return code.
func JobFailure(job string, returncode int) *AppError {
	return &AppError{
		Code: ErrCodeJobFailure, Message: fmt.Sprintf("job %s failed with return code %d", job, returncode),
		HTTPStatus: http.StatusInternalServerError, Retryable: true,
		Details: map[string]any{"job": job, "returncode": returncode},
	}
}

// Cancelled reports a cancelled workflow or job.
func Cancelled(what string) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: fmt.Sprintf("%s cancelled", what),
		HTTPStatus: http.StatusConflict, Details: map[string]any{"target": what},
	}
}
