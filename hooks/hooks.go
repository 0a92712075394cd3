// Package hooks provides the pre/post extension points the snapshot
// subsystem fires around its exported operations, trimmed down from the
// teacher's general-purpose event bus to the events this module actually
// emits.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nexustablet/snapshotd/core"
)

// EventType identifies one kind of hook event.
type EventType string

const (
	EventPreMakeSnapshot      EventType = "PreMakeSnapshot"
	EventPostMakeSnapshot     EventType = "PostMakeSnapshot"
	EventPreReleaseSnapshot   EventType = "PreReleaseSnapshot"
	EventPostReleaseSnapshot  EventType = "PostReleaseSnapshot"
	EventPreConvertRowsetIds  EventType = "PreConvertRowsetIds"
	EventPostConvertRowsetIds EventType = "PostConvertRowsetIds"
)

// HookManager registers and fires listeners for snapshot lifecycle events.
type HookManager interface {
	Register(eventType EventType, listener HookListener)
	Trigger(ctx context.Context, event HookEvent) error
	Stop()
}

// HookEvent is implemented by every event payload wrapper.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent is the shared HookEvent implementation.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreMakeSnapshotPayload carries the request identity before selection
// begins. A listener vetoes the operation by returning an error from
// OnEvent, not by mutating this payload.
type PreMakeSnapshotPayload struct {
	TabletID   int64
	SchemaHash uint32
}

func NewPreMakeSnapshotEvent(p PreMakeSnapshotPayload) HookEvent {
	return &BaseEvent{eventType: EventPreMakeSnapshot, payload: p}
}

// PostMakeSnapshotPayload reports where a snapshot landed.
type PostMakeSnapshotPayload struct {
	TabletID     int64
	SchemaHash   uint32
	SnapshotPath string
	Error        error
}

func NewPostMakeSnapshotEvent(p PostMakeSnapshotPayload) HookEvent {
	return &BaseEvent{eventType: EventPostMakeSnapshot, payload: p}
}

// PreReleaseSnapshotPayload carries the path about to be removed.
type PreReleaseSnapshotPayload struct {
	SnapshotPath string
}

func NewPreReleaseSnapshotEvent(p PreReleaseSnapshotPayload) HookEvent {
	return &BaseEvent{eventType: EventPreReleaseSnapshot, payload: p}
}

// PostReleaseSnapshotPayload reports the outcome of a release.
type PostReleaseSnapshotPayload struct {
	SnapshotPath string
	Error        error
}

func NewPostReleaseSnapshotEvent(p PostReleaseSnapshotPayload) HookEvent {
	return &BaseEvent{eventType: EventPostReleaseSnapshot, payload: p}
}

// PreConvertRowsetIdsPayload carries the clone directory about to be rebound.
type PreConvertRowsetIdsPayload struct {
	CloneDir      string
	NewTabletID   int64
	NewSchemaHash uint32
}

func NewPreConvertRowsetIdsEvent(p PreConvertRowsetIdsPayload) HookEvent {
	return &BaseEvent{eventType: EventPreConvertRowsetIds, payload: p}
}

// PostConvertRowsetIdsPayload reports the rewritten header.
type PostConvertRowsetIdsPayload struct {
	CloneDir string
	Header   *core.TabletHeader
	Error    error
}

func NewPostConvertRowsetIdsEvent(p PostConvertRowsetIdsPayload) HookEvent {
	return &BaseEvent{eventType: EventPostConvertRowsetIds, payload: p}
}

// HookListener is a subscriber to one or more event types.
type HookListener interface {
	OnEvent(ctx context.Context, event HookEvent) error
	Priority() int
	IsAsync() bool
}

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is the concrete, priority-ordered HookManager.
// Pre-hooks always run synchronously so a returned error can cancel the
// operation; Post-hooks may opt into asynchronous execution.
type DefaultHookManager struct {
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool { return l[i].priority >= item.priority })
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()
	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		if isPreHook || !item.listener.IsAsync() {
			if isPreHook && item.listener.IsAsync() {
				m.logger.Warn("listener requested async execution for a pre-hook, running synchronously", "event", event.Type(), "priority", item.priority)
			}
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("synchronous post-hook listener failed", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(current *listenerWithPriority) {
				defer m.wg.Done()
				if err := current.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("asynchronous post-hook listener failed", "event", event.Type(), "priority", current.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
