/**
 * Recovery Event Bus
 * Synchronous publish/subscribe for recovery lifecycle events
 *
 * Features:
 * - Handlers run synchronously in subscription order
 * - Handler panics are recovered and logged
 * - Handlers run without the bus lock, so a handler may publish
 * - Bounded history with snapshot copies
 * - Optional buffered channels for streaming consumers
 *
 * Author: SyncGuard Team
 * Update History:
 * - 2026-10-05: Initial implementation
 */

package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// EventType defines the type of recovery event.
type EventType string

const (
	EventFailureDetected   EventType = "FAILURE_DETECTED"
	EventRecoveryStarted   EventType = "RECOVERY_STARTED"
	EventRecoveryCompleted EventType = "RECOVERY_COMPLETED"
	EventRecoveryFailed    EventType = "RECOVERY_FAILED"
	EventBackupCreated     EventType = "BACKUP_CREATED"
)

// EventTypes lists every event type.
var EventTypes = []EventType{
	EventFailureDetected,
	EventRecoveryStarted,
	EventRecoveryCompleted,
	EventRecoveryFailed,
	EventBackupCreated,
}

// IsTerminal reports whether the event closes a recovery.
func (et EventType) IsTerminal() bool {
	return et == EventRecoveryCompleted || et == EventRecoveryFailed
}

// Event is an append-only audit record. It is never mutated after publish.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	OperationID string                 `json:"operationId,omitempty"`
	Action      model.RecoveryAction   `json:"action,omitempty"`
	Result      *model.RecoveryResult  `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Handler processes events.
type Handler func(event Event)

// Publisher is the narrow interface components publish through.
type Publisher interface {
	Publish(event Event) Event
}

// DefaultHistorySize is the number of events retained when none is configured.
const DefaultHistorySize = 1000

type subscription struct {
	id      uint64
	handler Handler
	types   map[EventType]struct{}
}

func (s subscription) wants(et EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[et]
	return ok
}

// Bus manages event distribution.
type Bus struct {
	logger      *logger.Logger
	channels    map[string]chan Event
	subs        []subscription
	history     []Event
	historySize int
	nextID      uint64
	bufferSize  int
	mu          sync.RWMutex
}

// NewBus creates a bus retaining at most historySize events.
func NewBus(historySize int, log *logger.Logger) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if log == nil {
		log = logger.Global()
	}

	return &Bus{
		logger:      log,
		channels:    make(map[string]chan Event),
		historySize: historySize,
		bufferSize:  100,
	}
}

// Subscribe adds a handler for the given event types, or for every type
// when none are given. The returned func removes the subscription.
func (b *Bus) Subscribe(handler Handler, types ...EventType) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subs = append(b.subs, sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub.id) })
	}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish records the event and calls every matching handler in
// subscription order. It fills in ID and Timestamp when unset and returns
// the stored event.
func (b *Bus) Publish(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	if overflow := len(b.history) - b.historySize; overflow > 0 {
		b.history = append(b.history[:0:0], b.history[overflow:]...)
	}

	// Copy handlers to avoid holding lock during execution
	handlers := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(event.Type) {
			handlers = append(handlers, sub.handler)
		}
	}

	for _, ch := range b.channels {
		select {
		case ch <- event:
		default:
			// Channel full, skip to avoid blocking
		}
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		b.callHandler(handler, event)
	}

	return event
}

// callHandler safely calls a handler.
func (b *Bus) callHandler(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(fmt.Errorf("panic in event handler: %v", r),
				"Event handler panicked",
				"event_type", string(event.Type),
				"event_id", event.ID,
				"operation_id", event.OperationID,
			)
		}
	}()

	handler(event)
}

// History returns a snapshot of retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// HistoryFor returns retained events for one operation, oldest first.
func (b *Bus) HistoryFor(operationID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.history {
		if e.OperationID == operationID {
			out = append(out, e)
		}
	}
	return out
}

// CreateChannel creates a named buffered channel that receives every event.
// Events are dropped for a channel whose buffer is full.
func (b *Bus) CreateChannel(name string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, exists := b.channels[name]; exists {
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.channels[name] = ch
	return ch
}

// CloseChannel closes a named channel.
func (b *Bus) CloseChannel(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, exists := b.channels[name]; exists {
		close(ch)
		delete(b.channels, name)
	}
}

// Close closes every channel. Subscribers are left in place.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, ch := range b.channels {
		close(ch)
		delete(b.channels, name)
	}
}
