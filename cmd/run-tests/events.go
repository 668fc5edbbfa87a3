package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

// event is one line of go test -json output.
type event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// TestResult is the outcome of one test.
type TestResult struct {
	Name    string
	Status  string
	Elapsed time.Duration
	Output  string
}

// PackageResult is the outcome of one package.
type PackageResult struct {
	Name    string
	Status  string
	Elapsed time.Duration
	Tests   []*TestResult
	output  strings.Builder
}

// Count returns the number of tests with status.
func (p *PackageResult) Count(status string) int {
	n := 0
	for _, t := range p.Tests {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Summary gathers the results of a run.
type Summary struct {
	Packages []*PackageResult
	// Other is output that is not part of the JSON stream, such as build
	// errors.
	Other string
}

// Failed counts failed tests, plus failed packages without a failed test.
func (s *Summary) Failed() int {
	n := 0
	for _, p := range s.Packages {
		failed := p.Count("fail")
		if failed == 0 && p.Status == "fail" {
			failed = 1
		}
		n += failed
	}
	return n
}

func (s *Summary) String() string {
	var b strings.Builder
	var passed, failed, skipped int
	for _, p := range s.Packages {
		passed += p.Count("pass")
		failed += p.Count("fail")
		skipped += p.Count("skip")
		for _, t := range p.Tests {
			if t.Status == "fail" {
				fmt.Fprintf(&b, "--- FAIL: %s %s (%s)\n", p.Name, t.Name, t.Elapsed)
				b.WriteString(indent(t.Output))
			}
		}
		if p.Status == "fail" && p.Count("fail") == 0 {
			fmt.Fprintf(&b, "--- FAIL: %s\n", p.Name)
			b.WriteString(indent(p.output.String()))
		}
	}
	if s.Other != "" {
		b.WriteString(s.Other)
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d skipped in %d packages\n", passed, failed, skipped, len(s.Packages))
	return b.String()
}

func indent(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return "    " + strings.Join(lines, "\n    ") + "\n"
}

// eventWriter decodes go test -json output as it is written, echoing the
// test output when echo is set.
type eventWriter struct {
	mu       sync.Mutex
	out      io.Writer
	echo     bool
	partial  []byte
	packages map[string]*PackageResult
	tests    map[[2]string]*TestResult
	other    strings.Builder
}

func newEventWriter(out io.Writer, echo bool) *eventWriter {
	return &eventWriter{
		out:      out,
		echo:     echo,
		packages: make(map[string]*PackageResult),
		tests:    make(map[[2]string]*TestResult),
	}
}

func (w *eventWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Flush handles a trailing line without a newline.
func (w *eventWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.line(w.partial)
		w.partial = nil
	}
}

func (w *eventWriter) line(raw []byte) {
	var ev event
	if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &ev) != nil || ev.Action == "" {
		w.other.Write(raw)
		w.other.WriteByte('\n')
		if w.echo {
			fmt.Fprintf(w.out, "%s\n", raw)
		}
		return
	}

	pkg := w.packages[ev.Package]
	if pkg == nil {
		pkg = &PackageResult{Name: ev.Package}
		w.packages[ev.Package] = pkg
	}
	elapsed := time.Duration(ev.Elapsed * float64(time.Second))
	if ev.Test == "" {
		switch ev.Action {
		case "output":
			pkg.output.WriteString(ev.Output)
		case "pass", "fail", "skip":
			pkg.Status = ev.Action
			pkg.Elapsed = elapsed
		}
		if w.echo && ev.Action == "output" {
			_, _ = io.WriteString(w.out, ev.Output)
		}
		return
	}

	key := [2]string{ev.Package, ev.Test}
	t := w.tests[key]
	if t == nil {
		t = &TestResult{Name: ev.Test, Status: "run"}
		w.tests[key] = t
		pkg.Tests = append(pkg.Tests, t)
	}
	switch ev.Action {
	case "output":
		t.Output += ev.Output
		if w.echo {
			_, _ = io.WriteString(w.out, ev.Output)
		}
	case "pass", "fail", "skip":
		t.Status = ev.Action
		t.Elapsed = elapsed
	}
}

// Summary returns the results gathered so far, packages sorted by name.
func (w *eventWriter) Summary() *Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := &Summary{Other: w.other.String()}
	for _, p := range w.packages {
		s.Packages = append(s.Packages, p)
	}
	slices.SortFunc(s.Packages, func(a, b *PackageResult) int { return strings.Compare(a.Name, b.Name) })
	return s
}
