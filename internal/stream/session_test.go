package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/neboloop/clawreach/internal/lifecycle"
)

func newTestSession(t *testing.T, cfg Config, opts ...Option) (*Session, *fakeTransport, *recordUI) {
	t.Helper()
	ft := &fakeTransport{}
	ui := &recordUI{}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s := New(cfg, Deps{UI: ui, Transport: ft.factory()}, opts...)
	t.Cleanup(func() { s.Close() })
	return s, ft, ui
}

func TestConnectScenario(t *testing.T) {
	s, ft, ui := newTestSession(t, Config{URL: "wss://h/clawreach", Token: ""})

	if got := s.Status(); got != StatusDisconnected {
		t.Fatalf("initial status = %v, want disconnected", got)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := s.Status(); got != StatusConnecting {
		t.Errorf("status after Connect = %v, want connecting", got)
	}
	if ft.url != "wss://h/clawreach" {
		t.Errorf("transport url = %q", ft.url)
	}
	if h := ft.header.Get("Authorization"); h != "" {
		t.Errorf("Authorization = %q, want none without a token", h)
	}
	if ft.startCount() != 1 {
		t.Errorf("starts = %d, want 1", ft.startCount())
	}

	s.HandleEvent(Event{Kind: EventConnected})

	if got := s.Status(); got != StatusConnected {
		t.Errorf("status = %v, want connected", got)
	}
	if st, ok := ui.last(); !ok || st != UIListening {
		t.Errorf("ui = %v (%v), want listening", st, ok)
	}
}

func TestConnectSendsBearerToken(t *testing.T) {
	s, ft, _ := newTestSession(t, Config{URL: "wss://h/clawreach", Token: "secret", DeviceID: "dev-1"})
	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	if h := ft.header.Get("Authorization"); h != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", h, "Bearer secret")
	}
	if h := ft.header.Get("X-Device-ID"); h != "dev-1" {
		t.Errorf("X-Device-ID = %q, want %q", h, "dev-1")
	}
}

func TestConnectKeepsConnectedFromInflightDial(t *testing.T) {
	ft := &fakeTransport{}
	var s *Session
	factory := func(url string, header http.Header, emit func(Event)) (Transport, error) {
		// An earlier dial completes while Connect is building the transport.
		s.status.Store(int32(StatusConnected))
		return ft, nil
	}
	s = New(Config{URL: "wss://h/clawreach"}, Deps{Transport: factory}, WithLogger(discardLogger()))
	defer s.Close()

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := s.Status(); got != StatusConnected {
		t.Errorf("status = %v, want connected", got)
	}
	if ft.startCount() != 0 {
		t.Errorf("starts = %d, want 0 while connected", ft.startCount())
	}
}

func TestConnectWithoutURL(t *testing.T) {
	clock := newFakeClock()
	s, ft, _ := newTestSession(t, Config{}, WithClock(clock.Now))

	if err := s.Connect(); !errors.Is(err, ErrNoURLConfigured) {
		t.Fatalf("err = %v, want ErrNoURLConfigured", err)
	}
	if got := s.Status(); got != StatusDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}
	for i := 0; i < 100; i++ {
		clock.Advance(time.Second)
		s.Poll()
	}
	if ft.startCount() != 0 {
		t.Errorf("poll started the transport %d times without a URL", ft.startCount())
	}
}

func TestDisconnectShowsConnecting(t *testing.T) {
	s, _, ui := newTestSession(t, Config{URL: "wss://h/clawreach"})
	s.Connect()
	s.HandleEvent(Event{Kind: EventConnected})
	s.HandleEvent(Event{Kind: EventDisconnected})

	if got := s.Status(); got != StatusDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}
	want := []UIState{UIListening, UIConnecting}
	got := ui.all()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ui transitions = %v, want %v", got, want)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	s, ft, _ := newTestSession(t, Config{URL: "wss://h/clawreach"})

	if err := s.SendAudio([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendAudio err = %v, want ErrNotConnected", err)
	}
	if err := s.SendVideo(make([]byte, MaxVideoPayload+1)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendVideo err = %v, want ErrNotConnected", err)
	}
	if n := len(ft.written()); n != 0 {
		t.Errorf("%d transport writes, want 0", n)
	}
}

func TestSendVideoTooLarge(t *testing.T) {
	s, ft, _ := newTestSession(t, Config{URL: "wss://h/clawreach"})
	s.Connect()
	s.HandleEvent(Event{Kind: EventConnected})

	err := s.SendVideo(make([]byte, MaxVideoPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if got := s.Status(); got != StatusConnected {
		t.Errorf("status = %v, want connected", got)
	}
	if n := len(ft.written()); n != 0 {
		t.Errorf("%d transport writes, want 0", n)
	}
}

func TestBlockedSendResolvesOnDisconnect(t *testing.T) {
	s, _, _ := newTestSession(t, Config{URL: "wss://h/clawreach"})
	s.Connect()
	s.HandleEvent(Event{Kind: EventConnected})

	// Another producer holds the hand-off.
	if err := s.gate.handoff.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer s.gate.handoff.Release(1)

	done := make(chan error, 1)
	go func() { done <- s.SendAudio([]byte{1, 2}) }()

	s.HandleEvent(Event{Kind: EventDisconnected})

	select {
	case err := <-done:
		if !errors.Is(err, ErrBusy) && !errors.Is(err, ErrTransport) && !errors.Is(err, ErrNotConnected) {
			t.Errorf("err = %v, want ErrBusy, ErrTransport or ErrNotConnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendAudio did not resolve within its timeout")
	}
}

func TestInboundFramesReachCollaborators(t *testing.T) {
	s, _, ui := newTestSession(t, Config{URL: "wss://h/clawreach"})
	s.Connect()
	s.HandleEvent(Event{Kind: EventConnected})

	s.HandleEvent(Event{Kind: EventData, Op: OpBinary, Data: append([]byte{0x04}, "speaking..."...)})
	if st, _ := ui.last(); st != UISpeaking {
		t.Errorf("ui = %v, want speaking", st)
	}

	n := len(ui.all())
	s.HandleEvent(Event{Kind: EventData, Op: OpBinary, Data: append([]byte{0x04}, "unknown_token"...)})
	s.HandleEvent(Event{Kind: EventData, Op: OpText, Data: append([]byte{0x04}, "listening"...)})
	s.HandleEvent(Event{Kind: EventData, Op: OpBinary})
	if len(ui.all()) != n {
		t.Errorf("ignored messages caused UI transitions: %v", ui.all()[n:])
	}
}

func TestLifecycleEvents(t *testing.T) {
	lc := lifecycle.New()

	var mu sync.Mutex
	var statuses []string
	var frames []lifecycle.Event
	lc.OnStatusChanged(func(d lifecycle.StatusData) {
		mu.Lock()
		statuses = append(statuses, d.To)
		mu.Unlock()
	})
	lc.OnFrame(func(e lifecycle.Event, d lifecycle.FrameData) {
		mu.Lock()
		frames = append(frames, e)
		mu.Unlock()
	})

	s, _, _ := newTestSession(t, Config{URL: "wss://h/clawreach"}, WithLifecycle(lc))
	s.Connect()
	s.HandleEvent(Event{Kind: EventConnected})
	s.SendAudio([]byte{1})
	s.SendAudio(make([]byte, MaxAudioPayload+1))
	s.HandleEvent(Event{Kind: EventData, Op: OpBinary, Data: []byte{0x01, 0xFF}})
	s.HandleEvent(Event{Kind: EventError, Err: errors.New("reset by peer")})

	mu.Lock()
	defer mu.Unlock()
	wantStatuses := []string{"connecting", "connected", "error", "disconnected"}
	if len(statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v, want %v", statuses, wantStatuses)
	}
	for i := range wantStatuses {
		if statuses[i] != wantStatuses[i] {
			t.Errorf("statuses[%d] = %q, want %q", i, statuses[i], wantStatuses[i])
		}
	}
	wantFrames := []lifecycle.Event{lifecycle.EventFrameSent, lifecycle.EventFrameDropped, lifecycle.EventFrameReceived}
	if len(frames) != len(wantFrames) {
		t.Fatalf("frames = %v, want %v", frames, wantFrames)
	}
	for i := range wantFrames {
		if frames[i] != wantFrames[i] {
			t.Errorf("frames[%d] = %q, want %q", i, frames[i], wantFrames[i])
		}
	}
}

func TestReconfigureDropsStaleEvents(t *testing.T) {
	ft := &fakeTransport{}
	s := New(Config{URL: "wss://old/clawreach"}, Deps{Transport: ft.factory()}, WithLogger(discardLogger()))
	defer s.Close()

	if err := s.Connect(); err != nil {
		t.Fatal(err)
	}
	ft.mu.Lock()
	oldEmit := ft.emit
	ft.mu.Unlock()

	if err := s.Reconfigure(Config{URL: "wss://new/clawreach", Token: "t"}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if !ft.closed {
		t.Error("old transport was not closed")
	}
	if got := s.Config().URL; got != "wss://new/clawreach" {
		t.Errorf("URL = %q", got)
	}
	if h := ft.header.Get("Authorization"); h != "Bearer t" {
		t.Errorf("Authorization = %q after reconfigure", h)
	}

	// The old transport's connected event arrives late and must be ignored.
	go oldEmit(Event{Kind: EventConnected})
	select {
	case ev := <-s.events:
		s.HandleEvent(ev)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	if got := s.Status(); got == StatusConnected {
		t.Error("stale event changed the status")
	}
}

func TestReconfigureWithoutURL(t *testing.T) {
	s, _, _ := newTestSession(t, Config{URL: "wss://h/clawreach"})
	s.Connect()
	if err := s.Reconfigure(Config{}); !errors.Is(err, ErrNoURLConfigured) {
		t.Errorf("err = %v, want ErrNoURLConfigured", err)
	}
	if got := s.Status(); got != StatusDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}
}

func TestRunStopsOnClose(t *testing.T) {
	s, _, _ := newTestSession(t, Config{URL: "wss://h/clawreach"})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	s.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
