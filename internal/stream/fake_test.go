package stream

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// fakeTransport records every call. inFlight detects overlapping writes.
type fakeTransport struct {
	mu      sync.Mutex
	url     string
	header  http.Header
	emit    func(Event)
	starts  int
	writes  [][]byte
	closed  bool
	sendErr error
	delay   time.Duration

	inFlight    atomic.Int32
	overlapping atomic.Bool
}

func (f *fakeTransport) factory() TransportFactory {
	return func(url string, header http.Header, emit func(Event)) (Transport, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.url, f.header, f.emit = url, header, emit
		return f, nil
	}
}

func (f *fakeTransport) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeTransport) SendBinary(data []byte, _ time.Duration) error {
	if f.inFlight.Add(1) > 1 {
		f.overlapping.Store(true)
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeTransport) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

// recordUI collects UI transitions.
type recordUI struct {
	mu     sync.Mutex
	states []UIState
}

func (r *recordUI) Transition(s UIState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordUI) all() []UIState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]UIState(nil), r.states...)
}

func (r *recordUI) last() (UIState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return 0, false
	}
	return r.states[len(r.states)-1], true
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
