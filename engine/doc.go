// Package engine runs compiled workflows locally.
//
// Jobs are started level by level in dependency order, at most Workers at
// a time. Process jobs are re-instantiated from a process registry by
// definition, loaded with the job values and executed; their outputs are
// then propagated to the inputs of the jobs they feed. Temporaries are
// removed as soon as their last reader is finished.
//
//	eng := engine.New(engine.WithWorkers(4), engine.WithStore(store))
//	report, err := eng.Submit(ctx, wf, engine.SubmitTimeout(time.Hour))
//	if err != nil {
//	    return err // the workflow could not be started
//	}
//	fmt.Print(report)
//
// Every job runner is wrapped with logging and, when enabled, tracing and
// metrics decorators.
package engine
