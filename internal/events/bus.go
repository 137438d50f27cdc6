// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package events

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Priority orders handler invocation within one dispatch. Higher priorities
// run first; ties run in registration order.
type Priority int

const (
	PriorityLowest  Priority = 0
	PriorityLow     Priority = 25
	PriorityNormal  Priority = 50
	PriorityHigh    Priority = 75
	PriorityHighest Priority = 100
)

// Handler receives a published event. A handler may call event.Cancel to
// stop dispatch to lower-priority handlers when the event is cancellable.
type Handler func(e *Event)

const defaultHistorySize = 100

// globalType keys the handler list that receives every event regardless of
// type. It is not a valid event type for Publish.
const globalType = "*"

type subscription struct {
	id       string
	priority Priority
	once     bool
	fn       Handler
}

// Bus is the in-process publish/subscribe dispatcher. The zero value is not
// usable; construct with NewBus.
type Bus struct {
	mu          sync.Mutex
	handlers    map[string][]*subscription
	history     []*Event
	historySize int
	wg          sync.WaitGroup
}

// NewBus creates a bus with the given history capacity; historySize <= 0
// selects the default (100).
func NewBus(historySize int) *Bus {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Bus{
		handlers:    make(map[string][]*subscription),
		historySize: historySize,
	}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithPriority sets the handler's dispatch priority (default PriorityNormal).
func WithPriority(p Priority) SubscribeOption {
	return func(s *subscription) { s.priority = p }
}

// Once removes the handler after its first invocation.
func Once() SubscribeOption {
	return func(s *subscription) { s.once = true }
}

// Subscribe registers a handler for one event type and returns an opaque id
// for Unsubscribe. Handlers for the same type run highest priority first,
// ties in registration order.
func (b *Bus) Subscribe(eventType string, h Handler, opts ...SubscribeOption) string {
	return b.subscribe(eventType, h, opts...)
}

// SubscribeAll registers a handler that receives every published event,
// merged into each dispatch by priority alongside type-specific handlers.
func (b *Bus) SubscribeAll(h Handler, opts ...SubscribeOption) string {
	return b.subscribe(globalType, h, opts...)
}

func (b *Bus) subscribe(eventType string, h Handler, opts ...SubscribeOption) string {
	sub := &subscription{
		id:       eventType + ":" + uuid.NewString(),
		priority: PriorityNormal,
		fn:       h,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	list := append(b.handlers[eventType], sub)
	// Stable sort keeps registration order for equal priorities.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority > list[j].priority
	})
	b.handlers[eventType] = list
	return sub.id
}

// Unsubscribe removes the handler identified by id. It reports whether a
// handler was removed.
func (b *Bus) Unsubscribe(id string) bool {
	idx := strings.LastIndex(id, ":")
	if idx < 0 {
		return false
	}
	eventType := id[:idx]

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[eventType]
	for i, sub := range list {
		if sub.id == id {
			b.handlers[eventType] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Publish dispatches the event synchronously on the caller's goroutine.
// Handler panics are swallowed per handler so one failing subscriber cannot
// block the rest.
func (b *Bus) Publish(e *Event) {
	b.dispatch(e)
}

// PublishAsync dispatches the event on a background goroutine. Drain blocks
// until all async dispatches have finished.
func (b *Bus) PublishAsync(e *Event) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(e)
	}()
}

// Drain waits for all in-flight async dispatches. Call at shutdown so that
// background dispatch cannot outlive the process.
func (b *Bus) Drain() {
	b.wg.Wait()
}

func (b *Bus) dispatch(e *Event) {
	b.mu.Lock()
	b.history = append(b.history, e)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}

	// Merge type-specific and global handlers, re-sorted by priority.
	merged := make([]*subscription, 0, len(b.handlers[e.Type])+len(b.handlers[globalType]))
	merged = append(merged, b.handlers[e.Type]...)
	merged = append(merged, b.handlers[globalType]...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].priority > merged[j].priority
	})
	b.mu.Unlock()

	var spent []string
	for _, sub := range merged {
		if e.Cancellable && e.Cancelled() {
			break
		}
		invoke(sub.fn, e)
		if sub.once {
			spent = append(spent, sub.id)
		}
	}
	for _, id := range spent {
		b.Unsubscribe(id)
	}
}

// invoke runs a handler, discarding any panic.
func invoke(h Handler, e *Event) {
	defer func() { _ = recover() }()
	h(e)
}

// History returns up to n most recent events, oldest first. n <= 0 returns
// the full retained history.
func (b *Bus) History(n int) []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]*Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}
