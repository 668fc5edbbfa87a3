// Package errors provides the structured error type shared by every capsule
// package. Each failure kind of the pipeline core (controller, definition,
// compilation, completion, execution) has a stable ErrorCode so callers can
// distinguish them at the API boundary with HasCode.
package errors
