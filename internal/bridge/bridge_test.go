// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pdiddy/docbridge/pkg/types"
)

// decodeLine splits a tagged line and unmarshals its JSON payload.
func decodeLine(t *testing.T, line, wantTag string) map[string]any {
	t.Helper()
	tag, payload, ok := strings.Cut(line, ": ")
	if !ok {
		t.Fatalf("line %q is not tag-framed", line)
	}
	if tag != wantTag {
		t.Fatalf("tag = %q, want %q", tag, wantTag)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("payload of %q is not valid JSON: %v", line, err)
	}
	return out
}

func TestResultLine(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	e.Result(Result{
		Success:    true,
		InputFile:  "notes.md",
		OutputFile: "notes.pdf",
		Converter:  "pandoc",
		Duration:   1.5,
	})

	got := decodeLine(t, strings.TrimSuffix(buf.String(), "\n"), TagResult)
	if got["success"] != true || got["input_file"] != "notes.md" || got["output_file"] != "notes.pdf" {
		t.Errorf("payload = %v", got)
	}
	if got["from_cache"] != false {
		t.Error("from_cache must always be present, even when false")
	}
}

func TestErrorLineCarriesKindAndDetails(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	e.Error(types.NewError(types.KindTrialExpired, "trial limit reached").
		WithDetail("conversions_used", 10))

	got := decodeLine(t, strings.TrimSuffix(buf.String(), "\n"), TagError)
	if got["kind"] != string(types.KindTrialExpired) {
		t.Errorf("kind = %v, want %v", got["kind"], types.KindTrialExpired)
	}
	details, _ := got["details"].(map[string]any)
	if details["conversions_used"] != float64(10) {
		t.Errorf("details = %v, want conversions_used carried through", details)
	}
}

func TestErrorLinePlainError(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	e.Error(errors.New("disk full"))

	got := decodeLine(t, strings.TrimSuffix(buf.String(), "\n"), TagError)
	if got["kind"] != "unknown" || got["message"] != "disk full" {
		t.Errorf("payload = %v", got)
	}
}

func TestBatchLines(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	e.BatchProgress(BatchProgress{Completed: 2, Total: 5, Current: "c.md"})
	e.BatchResult(BatchResult{Total: 5, Succeeded: 4, Failed: 1, Errors: []string{"d.md: no converter"}})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("%d lines, want 2", len(lines))
	}

	prog := decodeLine(t, lines[0], TagBatchProgress)
	if prog["completed"] != float64(2) || prog["total"] != float64(5) {
		t.Errorf("progress payload = %v", prog)
	}

	res := decodeLine(t, lines[1], TagBatchResult)
	if res["succeeded"] != float64(4) || res["failed"] != float64(1) {
		t.Errorf("result payload = %v", res)
	}
}

func TestConcurrentWritesStayLineFramed(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e.BatchProgress(BatchProgress{Completed: n, Total: 20})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("%d lines, want 20", len(lines))
	}
	for _, line := range lines {
		decodeLine(t, line, TagBatchProgress)
	}
}

func TestLogLine(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)

	e.Log("warning", "cache snapshot unreadable")

	got := decodeLine(t, strings.TrimSuffix(buf.String(), "\n"), TagLogMessage)
	if got["level"] != "warning" || got["message"] != "cache snapshot unreadable" {
		t.Errorf("payload = %v", got)
	}
}
