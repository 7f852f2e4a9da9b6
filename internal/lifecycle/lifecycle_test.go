package lifecycle

import (
	"errors"
	"testing"
)

func TestEmitRunsHandlersInOrder(t *testing.T) {
	m := New()
	var got []string
	m.On(EventReconnectAttempt, func(Event, any) { got = append(got, "a") })
	m.On(EventReconnectAttempt, func(Event, any) { got = append(got, "b") })
	m.On(EventTransportError, func(Event, any) { got = append(got, "other") })

	m.Emit(EventReconnectAttempt, nil)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("handlers ran as %v, want [a b]", got)
	}
}

func TestNilManagerDropsEvents(t *testing.T) {
	var m *Manager
	m.Emit(EventStatusChanged, StatusData{From: "disconnected", To: "connecting"})
}

func TestTypedHelpers(t *testing.T) {
	m := New()

	var status StatusData
	m.OnStatusChanged(func(d StatusData) { status = d })

	var frames []Event
	var dropErr error
	m.OnFrame(func(e Event, d FrameData) {
		frames = append(frames, e)
		if d.Err != nil {
			dropErr = d.Err
		}
	})

	var ui string
	m.OnUIState(func(s string) { ui = s })

	attempts := 0
	m.OnReconnectAttempt(func() { attempts++ })

	m.Emit(EventStatusChanged, StatusData{From: "connecting", To: "connected"})
	m.Emit(EventStatusChanged, "not status data")
	m.Emit(EventFrameSent, FrameData{Type: "audio", Size: 960})
	m.Emit(EventFrameDropped, FrameData{Type: "video", Err: errors.New("busy")})
	m.Emit(EventFrameReceived, FrameData{Type: "state", Size: 9})
	m.Emit(EventUIState, "speaking")
	m.Emit(EventReconnectAttempt, nil)

	if status.To != "connected" {
		t.Errorf("status = %+v", status)
	}
	if len(frames) != 3 || frames[0] != EventFrameSent || frames[1] != EventFrameDropped || frames[2] != EventFrameReceived {
		t.Errorf("frames = %v", frames)
	}
	if dropErr == nil {
		t.Error("drop error not delivered")
	}
	if ui != "speaking" {
		t.Errorf("ui = %q, want speaking", ui)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
