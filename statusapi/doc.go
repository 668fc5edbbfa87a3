// Package statusapi serves a read-only HTTP view of the executions
// recorded in a metastore.
//
// Routes:
//
//	GET /healthz                       service and metastore health
//	GET /version                       build information
//	GET /executions                    summaries, most recent first (?status=, ?limit=, ?page=)
//	GET /executions/:id                one recorded workflow
//	GET /executions/:id/jobs/:uuid     one job record
//
// Successful responses are wrapped in {"data": ...}; errors use the
// AppError body {"error": {"code", "message", ...}}.
package statusapi
