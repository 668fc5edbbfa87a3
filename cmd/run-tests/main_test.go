package main

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestGoTestArgs(t *testing.T) {
	tests := []struct {
		name     string
		opts     options
		packages []string
		want     []string
	}{
		{"defaults", options{}, nil, []string{"test", "-json", "./..."}},
		{"exit first", options{failFast: true}, []string{"./engine"}, []string{"test", "-json", "-failfast", "./engine"}},
		{"keyword", options{filter: "TestCompile"}, nil, []string{"test", "-json", "-run", "TestCompile", "./..."}},
		{"no capture", options{stream: true, verbose: true}, nil, []string{"test", "-json", "-p", "1", "./..."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goTestArgs(tt.opts, tt.packages); !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

const stream = `{"Action":"start","Package":"capsule/engine"}
{"Action":"run","Package":"capsule/engine","Test":"TestCancel"}
{"Action":"output","Package":"capsule/engine","Test":"TestCancel","Output":"=== RUN   TestCancel\n"}
{"Action":"pass","Package":"capsule/engine","Test":"TestCancel","Elapsed":0.02}
{"Action":"run","Package":"capsule/engine","Test":"TestRetry"}
{"Action":"output","Package":"capsule/engine","Test":"TestRetry","Output":"    engine_test.go:10: expected 3 attempts\n"}
{"Action":"fail","Package":"capsule/engine","Test":"TestRetry","Elapsed":0.5}
{"Action":"skip","Package":"capsule/attributes","Test":"TestSlow"}
{"Action":"fail","Package":"capsule/engine","Elapsed":0.6}
# capsule/broken
broken/x.go:3:1: syntax error
{"Action":"pass","Package":"capsule/attributes","Elapsed":0.1}`

func TestEventWriter(t *testing.T) {
	var echo bytes.Buffer
	w := newEventWriter(&echo, true)
	// split writes in the middle of lines
	for _, chunk := range []string{stream[:100], stream[100:333], stream[333:]} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	w.Flush()
	s := w.Summary()

	if len(s.Packages) != 2 || s.Packages[0].Name != "capsule/attributes" {
		t.Fatalf("expected 2 sorted packages, got %+v", s.Packages)
	}
	engine := s.Packages[1]
	if engine.Count("pass") != 1 || engine.Count("fail") != 1 || engine.Status != "fail" {
		t.Errorf("unexpected engine results: pass=%d fail=%d status=%s", engine.Count("pass"), engine.Count("fail"), engine.Status)
	}
	if s.Failed() != 1 {
		t.Errorf("expected 1 failure, got %d", s.Failed())
	}
	if !strings.Contains(s.Other, "syntax error") {
		t.Errorf("expected build output to be kept, got %q", s.Other)
	}
	if !strings.Contains(echo.String(), "=== RUN   TestCancel") {
		t.Errorf("expected test output to be echoed, got %q", echo.String())
	}

	text := s.String()
	for _, want := range []string{"--- FAIL: capsule/engine TestRetry", "expected 3 attempts", "1 passed, 1 failed, 1 skipped in 2 packages"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected summary to contain %q, got:\n%s", want, text)
		}
	}
}

func TestEventWriterQuiet(t *testing.T) {
	var echo bytes.Buffer
	w := newEventWriter(&echo, false)
	_, _ = w.Write([]byte(stream + "\n"))
	if echo.Len() != 0 {
		t.Errorf("expected no echo, got %q", echo.String())
	}
}

func TestWriteHTML(t *testing.T) {
	w := newEventWriter(&bytes.Buffer{}, false)
	_, _ = w.Write([]byte(stream + "\n"))
	path, err := writeHTML(filepath.Join(t.TempDir(), "report"), w.Summary())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"capsule/engine", "TestRetry", "class=\"fail\"", "syntax error"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("expected report to contain %q", want)
		}
	}
}
