// Package metastore records executions: the compiled workflow, its job
// states and a summary used for listings. MemoryStore serves tests and
// single runs; SQLiteStore keeps history across runs.
package metastore
