package workflow

import (
	"fmt"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/validation"
)

// Validate checks the structural invariants of the workflow: well formed
// job records, known dependency ends, an acyclic dependency relation,
// temporaries produced by exactly one job, and mandatory inputs that are
// either bound or fed by a producer.
func (w *Workflow) Validate() error {
	w.reindex()
	v := validation.New()
	v.Required("execution_id", w.ExecutionID)
	seen := make(map[string]bool, len(w.Jobs))
	for i, j := range w.Jobs {
		field := fmt.Sprintf("jobs[%d]", i)
		v.RequiredUUID(field+".uuid", j.UUID)
		v.Required(field+".name", j.Name)
		v.OneOf(field+".kind", string(j.Kind), string(KindJob), string(KindBarrierIn), string(KindBarrierOut), string(KindMkdir))
		v.Check(!seen[j.UUID], field+".uuid", "is duplicated")
		seen[j.UUID] = true
	}
	for i, d := range w.Dependencies {
		field := fmt.Sprintf("dependencies[%d]", i)
		v.Check(seen[d.Producer()], field, "unknown producer "+d.Producer())
		v.Check(seen[d.Consumer()], field, "unknown consumer "+d.Consumer())
	}
	if err := v.Validate(); err != nil {
		return err
	}

	if _, err := w.Levels(); err != nil {
		return err
	}

	producers := make(map[string]int)
	for _, j := range w.Jobs {
		for _, path := range pathStrings(j.Outputs) {
			producers[path]++
		}
	}
	for _, t := range w.Temporaries {
		if producers[t.Path] != 1 {
			return errors.InvalidInput("temporaries", fmt.Sprintf("%s is produced by %d jobs", t.Path, producers[t.Path]))
		}
	}

	fed := make(map[string]map[string]bool)
	for _, b := range w.Bindings {
		if fed[b.Consumer] == nil {
			fed[b.Consumer] = make(map[string]bool)
		}
		fed[b.Consumer][b.Input] = true
	}
	var offenders [][2]string
	for _, j := range w.Jobs {
		for _, name := range j.Required {
			if _, bound := j.Inputs[name]; bound || fed[j.UUID][name] {
				continue
			}
			offenders = append(offenders, [2]string{j.Name, name})
		}
	}
	if len(offenders) > 0 {
		return errors.UnsatisfiedInput(offenders)
	}
	return nil
}

// Levels groups job UUIDs by dependency depth using Kahn's algorithm. Jobs
// of one level can run in parallel. Levels keep the workflow job order.
func (w *Workflow) Levels() ([][]string, error) {
	inDegree := make(map[string]int, len(w.Jobs))
	dependents := make(map[string][]string)
	for _, j := range w.Jobs {
		inDegree[j.UUID] = 0
	}
	for _, d := range w.Dependencies {
		if _, ok := inDegree[d.Producer()]; !ok {
			return nil, errors.NotFound("job", d.Producer())
		}
		if _, ok := inDegree[d.Consumer()]; !ok {
			return nil, errors.NotFound("job", d.Consumer())
		}
		inDegree[d.Consumer()]++
		dependents[d.Producer()] = append(dependents[d.Producer()], d.Consumer())
	}

	var queue []string
	for _, j := range w.Jobs {
		if inDegree[j.UUID] == 0 {
			queue = append(queue, j.UUID)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(w.Jobs) {
		var names []string
		for _, j := range w.Jobs {
			if inDegree[j.UUID] > 0 {
				names = append(names, j.Name)
			}
		}
		return nil, errors.Cycle(names)
	}
	return levels, nil
}
