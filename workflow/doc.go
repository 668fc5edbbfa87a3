// Package workflow compiles a pipeline into a self-contained job graph.
//
// Compile walks the active leaves of a pipeline in dependency order and
// emits one Job per process node, one copy of the inner pipeline per
// iteration of an iterative node, and the dependencies, temporaries,
// transfers and parameter records an engine needs:
//
//	wf, err := workflow.Compile(p,
//	    workflow.WithScratchRoot("/scratch"),
//	    workflow.WithTransferRoots("/data"),
//	)
//
// Undefined file outputs that feed another job get a unique path under the
// scratch root. Iterative nodes get an input barrier when a job outside
// them produces one of their inputs and an output barrier when a job
// outside consumes one of their outputs.
//
// Compilation leaves the pipeline values as they were before the call. A
// workflow keeps no reference to the pipeline and can be serialized with
// Encode in JSON or MessagePack.
package workflow
