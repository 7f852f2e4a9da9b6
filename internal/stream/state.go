package stream

import "time"

// Status is the connection status. It is read without locking by the send
// gate and the UI, and written only by the session's event handling.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError // transient; folded into StatusDisconnected once published
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// effect is the set of side effects a transition asks the session to perform.
type effect uint8

const (
	effUIListening effect = 1 << iota
	effUIConnecting
	effDispatch
	effResetReconnect
	effArmReconnect
	effReportError
)

func (e effect) has(f effect) bool { return e&f != 0 }

// transition is the connection state machine. It has no side effects of its
// own so it can be exercised with synthetic events.
func transition(cur Status, ev Event) (Status, effect) {
	switch ev.Kind {
	case EventConnected:
		return StatusConnected, effUIListening | effResetReconnect
	case EventDisconnected:
		return StatusDisconnected, effUIConnecting | effArmReconnect
	case EventError:
		return StatusDisconnected, effReportError | effArmReconnect
	case EventData:
		if ev.Op == OpBinary {
			return cur, effDispatch
		}
	}
	return cur, 0
}

// DefaultReconnectInterval is the fixed delay between reconnect attempts.
const DefaultReconnectInterval = 5 * time.Second

// reconnector is a fixed-interval deadline. The zero deadline means "not armed".
type reconnector struct {
	interval time.Duration
	next     time.Time
}

func (r *reconnector) arm(now time.Time) {
	if r.next.IsZero() {
		r.next = now.Add(r.interval)
	}
}

func (r *reconnector) reset() { r.next = time.Time{} }

// due reports whether an attempt should be made at now, and re-arms if so.
func (r *reconnector) due(now time.Time) bool {
	if r.next.IsZero() {
		r.arm(now)
		return false
	}
	if now.Before(r.next) {
		return false
	}
	r.next = now.Add(r.interval)
	return true
}
