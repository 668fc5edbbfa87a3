// Package resilience provides the retry and bulkhead primitives used by the
// local execution engine: Retry re-runs failed jobs with exponential backoff
// and jitter, Bulkhead bounds how many jobs run at once.
package resilience
