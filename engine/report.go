package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/capsule/workflow"
)

// Report is the outcome of one submission.
type Report struct {
	ExecutionID string          `json:"execution_id"`
	Label       string          `json:"label"`
	Status      workflow.Status `json:"status"`
	Error       string          `json:"error,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	Duration    time.Duration   `json:"duration"`
	Jobs        []JobReport     `json:"jobs"`
	// Counts is the number of jobs per status.
	Counts map[workflow.Status]int `json:"counts"`
}

// JobReport is the outcome of one job.
type JobReport struct {
	UUID       string           `json:"uuid"`
	Name       string           `json:"name"`
	Kind       workflow.JobKind `json:"kind"`
	Status     workflow.Status  `json:"status"`
	ReturnCode *int             `json:"returncode,omitempty"`
	Attempts   int              `json:"attempts,omitempty"`
	Duration   time.Duration    `json:"duration,omitempty"`
	Error      string           `json:"error,omitempty"`
	Stdout     string           `json:"stdout,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
}

func newReport(wf *workflow.Workflow, start, end time.Time) *Report {
	r := &Report{
		ExecutionID: wf.ExecutionID,
		Label:       wf.Label,
		Status:      wf.Status,
		Error:       wf.Error,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Counts:      make(map[workflow.Status]int),
	}
	for _, j := range wf.Jobs {
		jr := JobReport{
			UUID:     j.UUID,
			Name:     j.Name,
			Kind:     j.Kind,
			Status:   j.Status,
			Attempts: j.Attempts,
			Error:    j.Error,
			Stdout:   j.Stdout,
			Stderr:   j.Stderr,
		}
		if j.ReturnCode != nil {
			rc := *j.ReturnCode
			jr.ReturnCode = &rc
		}
		if j.StartTime != nil && j.EndTime != nil {
			jr.Duration = j.EndTime.Sub(*j.StartTime)
		}
		r.Jobs = append(r.Jobs, jr)
		r.Counts[j.Status]++
	}
	return r
}

// Job returns the report of the job named name.
func (r *Report) Job(name string) (JobReport, bool) {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobReport{}, false
}

// Failed returns the reports of failed jobs.
func (r *Report) Failed() []JobReport {
	var out []JobReport
	for _, j := range r.Jobs {
		if j.Status == workflow.StatusFailed {
			out = append(out, j)
		}
	}
	return out
}

// String renders a human readable summary with the stderr of failed jobs.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "execution %s (%s): %s in %s\n", r.ExecutionID, r.Label, r.Status, r.Duration.Round(time.Millisecond))
	for _, s := range []workflow.Status{workflow.StatusDone, workflow.StatusFailed, workflow.StatusWaiting} {
		if n := r.Counts[s]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", s, n)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", r.Error)
	}
	for _, j := range r.Failed() {
		rc := "-"
		if j.ReturnCode != nil {
			rc = fmt.Sprint(*j.ReturnCode)
		}
		fmt.Fprintf(&b, "  failed %s (returncode %s): %s\n", j.Name, rc, j.Error)
		if s := strings.TrimSpace(j.Stderr); s != "" {
			fmt.Fprintf(&b, "    stderr: %s\n", s)
		}
	}
	return b.String()
}
