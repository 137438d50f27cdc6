// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package events implements the in-process publish/subscribe bus used for
// decoupled notifications between toolkit components. Handlers are invoked
// in priority order; a cancellable event can short-circuit the remaining
// handlers of the current publish.
package events

import (
	"sync"
	"time"
)

// Well-known event types published by the conversion engine.
const (
	TypeConversionStarted   = "conversion.started"
	TypeConversionCompleted = "conversion.completed"
	TypeConversionFailed    = "conversion.failed"
	TypeConversionCacheHit  = "conversion.cache_hit"
	TypeProgressUpdated     = "progress.updated"
	TypeError               = "error"
)

// Event is one published notification. Typed constructors mirror their fields
// into Data so generic subscribers can inspect any event uniformly.
type Event struct {
	Type        string
	Time        time.Time
	Source      string
	Data        map[string]any
	Cancellable bool

	mu        sync.Mutex
	cancelled bool
}

// New creates a generic event of the given type. The data map is used as-is;
// pass nil for an event without payload.
func New(eventType, source string, data map[string]any) *Event {
	if data == nil {
		data = make(map[string]any)
	}
	return &Event{
		Type:   eventType,
		Time:   time.Now().UTC(),
		Source: source,
		Data:   data,
	}
}

// Cancel marks the event cancelled. During a synchronous dispatch of a
// cancellable event, handlers after the caller are skipped. Cancelling a
// non-cancellable event has no effect on dispatch.
func (e *Event) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (e *Event) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// NewConversion creates a conversion lifecycle event (started, completed,
// failed, cache_hit) carrying the conversion type and file paths.
func NewConversion(eventType, conversionType, inputPath, outputPath, plugin string) *Event {
	return New(eventType, "engine", map[string]any{
		"conversion_type": conversionType,
		"input_path":      inputPath,
		"output_path":     outputPath,
		"plugin":          plugin,
	})
}

// NewProgress creates a progress event for a tracked operation.
func NewProgress(operationID string, currentStep, totalSteps int, description string) *Event {
	return New(TypeProgressUpdated, "progress", map[string]any{
		"operation_id": operationID,
		"current_step": currentStep,
		"total_steps":  totalSteps,
		"description":  description,
	})
}

// NewError creates an error event. details may be nil.
func NewError(source, message string, details map[string]any) *Event {
	data := map[string]any{"message": message}
	for k, v := range details {
		data[k] = v
	}
	return New(TypeError, source, data)
}
