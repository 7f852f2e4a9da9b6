// Package lifecycle provides event hooks for the streaming session: status
// changes, reconnect attempts and per-frame accounting.
package lifecycle

import "sync"

// Event types for lifecycle hooks
type Event string

const (
	// Connection events
	EventStatusChanged    Event = "status_changed"
	EventReconnectAttempt Event = "reconnect_attempt"
	EventTransportError   Event = "transport_error"
	EventConfigReloaded   Event = "config_reloaded"

	// Frame events
	EventFrameSent     Event = "frame_sent"
	EventFrameDropped  Event = "frame_dropped"
	EventFrameReceived Event = "frame_received"

	// UI events
	EventUIState Event = "ui_state"
)

// Handler is a function that handles a lifecycle event
type Handler func(event Event, data any)

// Manager manages lifecycle event subscriptions and dispatching.
// A nil *Manager accepts Emit and drops the event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{handlers: make(map[Event][]Handler)}
}

// On registers a handler for a lifecycle event
func (m *Manager) On(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// Emit dispatches an event to all registered handlers.
// Handlers run synchronously on the caller's goroutine and must not block.
func (m *Manager) Emit(event Event, data any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	for _, h := range handlers {
		h(event, data)
	}
}

// StatusData describes a connection status transition.
type StatusData struct {
	From string
	To   string
}

// FrameData describes one frame. Err is set for dropped frames.
type FrameData struct {
	Type string
	Size int
	Err  error
}

// OnStatusChanged registers a handler for status transitions
func (m *Manager) OnStatusChanged(handler func(StatusData)) {
	m.On(EventStatusChanged, func(e Event, data any) {
		if d, ok := data.(StatusData); ok {
			handler(d)
		}
	})
}

// OnReconnectAttempt registers a handler for reconnect attempts
func (m *Manager) OnReconnectAttempt(handler func()) {
	m.On(EventReconnectAttempt, func(e Event, data any) {
		handler()
	})
}

// OnFrame registers a handler for sent, dropped and received frames
func (m *Manager) OnFrame(handler func(e Event, data FrameData)) {
	for _, e := range []Event{EventFrameSent, EventFrameDropped, EventFrameReceived} {
		m.On(e, func(e Event, data any) {
			if d, ok := data.(FrameData); ok {
				handler(e, d)
			}
		})
	}
}

// OnUIState registers a handler for UI state changes
func (m *Manager) OnUIState(handler func(state string)) {
	m.On(EventUIState, func(e Event, data any) {
		if s, ok := data.(string); ok {
			handler(s)
		}
	})
}
