// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bridge emits machine-readable status lines for host applications
// that embed the converter as a subprocess. Each line is a fixed tag followed
// by a single JSON object, so a host can parse stdout line by line without
// guessing where human output ends and structured output begins.
package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pdiddy/docbridge/pkg/types"
)

// Line tags. Hosts dispatch on the prefix before the first colon-space.
const (
	TagProgress      = "PROGRESS"
	TagResult        = "RESULT"
	TagError         = "ERROR"
	TagBatchProgress = "BATCH_PROGRESS"
	TagBatchResult   = "BATCH_RESULT"
	TagLogMessage    = "LOG_MESSAGE"
)

// Result is the payload of a RESULT line.
type Result struct {
	Success    bool    `json:"success"`
	InputFile  string  `json:"input_file"`
	OutputFile string  `json:"output_file,omitempty"`
	Converter  string  `json:"converter,omitempty"`
	FromCache  bool    `json:"from_cache"`
	Duration   float64 `json:"duration_seconds"`
}

// BatchProgress is the payload of a BATCH_PROGRESS line.
type BatchProgress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   string `json:"current,omitempty"`
}

// BatchResult is the payload of a BATCH_RESULT line.
type BatchResult struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	Duration  float64  `json:"duration_seconds"`
}

// Emitter writes tagged JSON lines to a single stream. Writes are serialized
// so concurrent batch workers cannot interleave partial lines.
type Emitter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewEmitter creates an emitter writing to out.
func NewEmitter(out io.Writer) *Emitter {
	return &Emitter{out: out}
}

// Progress reports step progress for a single conversion.
func (e *Emitter) Progress(operationID string, percent float64, message string) {
	e.emit(TagProgress, map[string]any{
		"operation_id": operationID,
		"percent":      percent,
		"message":      message,
	})
}

// Result reports the outcome of a single conversion.
func (e *Emitter) Result(r Result) {
	e.emit(TagResult, r)
}

// Error reports a failure. Structured errors carry their kind and details;
// anything else is reduced to its message.
func (e *Emitter) Error(err error) {
	if terr := types.AsError(err); terr != nil {
		e.emit(TagError, terr.Dict())
		return
	}
	e.emit(TagError, map[string]any{"kind": "unknown", "message": err.Error()})
}

// BatchProgress reports per-file progress through a batch.
func (e *Emitter) BatchProgress(p BatchProgress) {
	e.emit(TagBatchProgress, p)
}

// BatchResult reports the summary of a finished batch.
func (e *Emitter) BatchResult(r BatchResult) {
	e.emit(TagBatchResult, r)
}

// Log forwards a human-oriented message in machine framing so hosts can
// surface it without parsing free text.
func (e *Emitter) Log(level, message string) {
	e.emit(TagLogMessage, map[string]any{
		"level":   level,
		"message": message,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (e *Emitter) emit(tag string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payloads are our own structs and maps; a marshal failure here is a
		// programming error, but the stream must stay line-framed regardless.
		data = []byte(fmt.Sprintf(`{"kind":"unknown","message":%q}`, err.Error()))
		tag = TagError
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, "%s: %s\n", tag, data)
}
