package stream

import (
	"bytes"
	"log/slog"
)

// UIState is a visual state of the device.
type UIState int

const (
	UIConnecting UIState = iota
	UIListening
	UISpeaking
)

func (s UIState) String() string {
	switch s {
	case UIConnecting:
		return "connecting"
	case UIListening:
		return "listening"
	case UISpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// AudioDecoder plays synthesized audio received from the server.
type AudioDecoder interface {
	Decode(payload []byte)
}

// DisplayHandler applies a display-command document. A malformed document is
// reported as an error and the frame is dropped.
type DisplayHandler interface {
	Apply(doc []byte) error
}

// UI receives visual state transitions.
type UI interface {
	Transition(state UIState)
}

var stateTokens = []struct {
	token []byte
	state UIState
}{
	{[]byte("listening"), UIListening},
	// No distinct thinking state exists; the device keeps its listening animation.
	{[]byte("thinking"), UIListening},
	{[]byte("speaking"), UISpeaking},
}

// ParseStateToken resolves a state payload by prefix, so "speaking..." or a
// token followed by extra data still resolves.
func ParseStateToken(p []byte) (UIState, bool) {
	for _, st := range stateTokens {
		if bytes.HasPrefix(p, st.token) {
			return st.state, true
		}
	}
	return 0, false
}

// Dispatcher routes inbound frames to their collaborators. It keeps no state
// between frames. Nil collaborators are skipped.
type Dispatcher struct {
	audio   AudioDecoder
	display DisplayHandler
	ui      UI
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(audio AudioDecoder, display DisplayHandler, ui UI, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{audio: audio, display: display, ui: ui, logger: logger}
}

// Dispatch handles one frame. It never panics: a collaborator panic is
// logged and the frame dropped.
func (d *Dispatcher) Dispatch(f Frame) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("frame handler panicked", "type", f.Type, "panic", r)
		}
	}()

	switch f.Type {
	case TypeAudio:
		if d.audio != nil {
			d.audio.Decode(f.Payload)
		}

	case TypeDisplay:
		if d.display == nil {
			return
		}
		if err := d.display.Apply(f.Payload); err != nil {
			d.logger.Warn("display command dropped", "error", err, "size", len(f.Payload))
		}

	case TypeState:
		st, ok := ParseStateToken(f.Payload)
		if !ok {
			d.logger.Debug("unrecognized state token", "size", len(f.Payload))
			return
		}
		if d.ui != nil {
			d.ui.Transition(st)
		}

	default:
		d.logger.Warn("unhandled frame type", "type", f.Type, "tag", f.Tag, "size", len(f.Payload))
	}
}
