// Package logger provides structured logging for capsule using zerolog.
//
// Components obtain a scoped logger with Get or WithComponent and log with
// map fields:
//
//	log := logger.Get("engine")
//	log.Info("job done", logger.Fields(logger.FieldJob, job.Name, "returncode", 0))
package logger
