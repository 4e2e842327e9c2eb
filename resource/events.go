// Copyright 2026 The Akira Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import "fmt"

// EventKind classifies a resource event.
type EventKind int

const (
	// EventQuotaWarning fires when a successful request crosses the
	// warning threshold (80% of quota) for a resource.
	EventQuotaWarning EventKind = iota

	// EventQuotaExceeded fires when a request is denied.
	EventQuotaExceeded

	// EventReset fires when an app's usage counters are zeroed.
	EventReset
)

// String returns the snake_case event name.
func (k EventKind) String() string {
	switch k {
	case EventQuotaWarning:
		return "quota_warning"
	case EventQuotaExceeded:
		return "quota_exceeded"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Event describes one resource event. Resource is meaningful for
// warning and exceeded events; reset events cover all kinds at once.
type Event struct {
	AppID    uint32
	Resource Kind
	Kind     EventKind
}

// String formats the event for log output.
func (e Event) String() string {
	if e.Kind == EventReset {
		return fmt.Sprintf("app %d: %s", e.AppID, e.Kind)
	}
	return fmt.Sprintf("app %d: %s (%s)", e.AppID, e.Kind, e.Resource)
}

// Callback receives resource events. Delivery is synchronous, in-line
// with the triggering call (after the manager's lock is released);
// callbacks must not block significantly.
type Callback func(Event)

// RegisterCallback adds an event callback. The callback table is
// fixed-size; registration fails with ErrOutOfSlots once it is full.
func (m *Manager) RegisterCallback(callback Callback) error {
	if callback == nil {
		return fmt.Errorf("resource: nil callback")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.callbacks) >= maxCallbacks {
		return fmt.Errorf("callbacks: %w", ErrOutOfSlots)
	}
	m.callbacks = append(m.callbacks, callback)
	return nil
}

// callbacksLocked snapshots the callback list for delivery outside the
// lock. Caller holds mu.
func (m *Manager) callbacksLocked() []Callback {
	if len(m.callbacks) == 0 {
		return nil
	}
	snapshot := make([]Callback, len(m.callbacks))
	copy(snapshot, m.callbacks)
	return snapshot
}

// fire delivers an event to each callback in registration order.
func fire(callbacks []Callback, event Event) {
	for _, callback := range callbacks {
		callback(event)
	}
}
