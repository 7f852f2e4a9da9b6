package stream

import (
	"context"
	"net/http"
	"time"
)

// EventKind identifies a transport event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventError
	EventData
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventData:
		return "data"
	default:
		return "unknown"
	}
}

// Opcode of a data event, mirroring WebSocket message types.
type Opcode int

const (
	OpText   Opcode = 1
	OpBinary Opcode = 2
)

// Event is pushed by a Transport from its own goroutine.
type Event struct {
	Kind EventKind
	Op   Opcode
	Data []byte
	Err  error

	gen uint64 // transport generation, stamped by the session
}

// Transport abstracts the duplex message connection.
type Transport interface {
	// Start begins connecting in the background. Calling Start while a dial
	// is in flight or while connected is a no-op.
	Start(ctx context.Context) error

	// SendBinary writes one binary message, bounded by timeout.
	// Callers must not invoke it concurrently; the send gate guarantees that.
	SendBinary(data []byte, timeout time.Duration) error

	// Close tears the connection down. No events are emitted after Close returns.
	Close() error
}

// TransportFactory builds a transport for url. Events are reported through emit,
// which never blocks for long and is safe to call from any goroutine.
type TransportFactory func(url string, header http.Header, emit func(Event)) (Transport, error)
