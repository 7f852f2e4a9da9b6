package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neboloop/clawreach/internal/lifecycle"
)

// ErrNoURLConfigured is returned by Connect until a server URL is provisioned.
var ErrNoURLConfigured = errors.New("no server URL configured")

// DefaultPollInterval is the cadence of the reconnect check in Run.
const DefaultPollInterval = 10 * time.Millisecond

// Config holds the session parameters.
type Config struct {
	URL      string // WebSocket URL, e.g. "wss://host/clawreach"
	Token    string // Optional bearer token
	DeviceID string // Optional device identifier sent as X-Device-ID

	Audio ChannelConfig
	Video ChannelConfig

	ReconnectInterval time.Duration
	PollInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Audio.MaxPayload == 0 {
		c.Audio = DefaultAudioChannel
	}
	if c.Video.MaxPayload == 0 {
		c.Video = DefaultVideoChannel
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Header returns the handshake headers for c.
func (c Config) Header() http.Header {
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	if c.DeviceID != "" {
		h.Set("X-Device-ID", c.DeviceID)
	}
	return h
}

// Deps holds the collaborators of a Session. Nil collaborators are skipped.
type Deps struct {
	Audio     AudioDecoder
	Display   DisplayHandler
	UI        UI
	Transport TransportFactory // defaults to a WebSocket transport
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock replaces time.Now, which drives the reconnect deadline.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLifecycle publishes session events on m.
func WithLifecycle(m *lifecycle.Manager) Option {
	return func(s *Session) { s.lc = m }
}

// Session owns one streaming connection: its config, transport, status and
// send gate. It is safe for concurrent use by producers, the transport and
// the supervising loop.
type Session struct {
	deps       Deps
	gate       *Gate
	dispatcher *Dispatcher
	status     atomic.Int32
	events     chan Event

	mu        sync.Mutex // guards the fields below
	cfg       Config
	transport Transport
	gen       uint64
	reconnect reconnector

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	logger *slog.Logger
	lc     *lifecycle.Manager
}

// New creates a disconnected session.
func New(cfg Config, deps Deps, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		deps:      deps,
		cfg:       cfg,
		events:    make(chan Event, 64),
		reconnect: reconnector{interval: cfg.ReconnectInterval},
		now:       time.Now,
		logger:    slog.Default().With("component", "stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deps.Transport == nil {
		s.deps.Transport = WebSocketTransport(s.logger)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.gate = newGate(cfg.Audio, cfg.Video, s.Status, s.currentTransport)
	s.dispatcher = NewDispatcher(deps.Audio, deps.Display, deps.UI, s.logger)
	s.status.Store(int32(StatusDisconnected))
	return s
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Config returns a copy of the active configuration.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Gate exposes the send gate, mostly for inspection.
func (s *Session) Gate() *Gate { return s.gate }

// Connect creates the transport if needed and asks it to start.
func (s *Session) Connect() error {
	if s.Status() == StatusConnected {
		return nil
	}

	s.mu.Lock()
	cfg := s.cfg
	if cfg.URL == "" {
		s.mu.Unlock()
		s.logger.Error("no server URL configured")
		return ErrNoURLConfigured
	}
	if s.transport == nil {
		gen := s.gen + 1
		tr, err := s.deps.Transport(cfg.URL, cfg.Header(), s.emitter(gen))
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("create transport: %w", err)
		}
		s.transport, s.gen = tr, gen
	}
	tr := s.transport
	prev, ok := s.markConnecting()
	if !ok {
		// A dial already in flight completed meanwhile.
		s.mu.Unlock()
		return nil
	}
	s.reconnect.reset()
	s.reconnect.arm(s.now())
	s.mu.Unlock()

	s.publishStatus(prev, StatusConnecting)
	s.logger.Info("connecting", "url", cfg.URL)
	if err := tr.Start(s.ctx); err != nil {
		s.logger.Error("transport start failed", "error", err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// Poll performs one reconnect check. While not connected it restarts the
// transport at most once per reconnect interval, indefinitely.
func (s *Session) Poll() {
	if s.Status() == StatusConnected {
		return
	}

	s.mu.Lock()
	tr := s.transport
	if tr == nil || s.cfg.URL == "" || !s.reconnect.due(s.now()) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info("attempting reconnect")
	s.lc.Emit(lifecycle.EventReconnectAttempt, nil)
	if err := tr.Start(s.ctx); err != nil {
		s.logger.Warn("reconnect start failed", "error", err)
	}
}

// Run pumps transport events and polls for reconnects until ctx is done or
// the session is closed.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Config().PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case ev := <-s.events:
			s.HandleEvent(ev)
		case <-ticker.C:
			s.Poll()
		}
	}
}

// HandleEvent applies one transport event. Events from a transport that
// has since been replaced are ignored.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	if ev.gen != 0 && ev.gen != s.gen {
		s.mu.Unlock()
		return
	}
	next, eff := transition(s.Status(), ev)
	if eff.has(effResetReconnect) {
		s.reconnect.reset()
	}
	if eff.has(effArmReconnect) {
		s.reconnect.arm(s.now())
	}
	s.mu.Unlock()

	switch ev.Kind {
	case EventConnected:
		s.logger.Info("connected")
	case EventDisconnected:
		s.logger.Info("disconnected")
	}
	if eff.has(effReportError) {
		s.logger.Warn("transport error", "error", ev.Err)
		s.setStatus(StatusError)
		s.lc.Emit(lifecycle.EventTransportError, ev.Err)
	}

	s.setStatus(next)

	if eff.has(effUIListening) {
		s.transitionUI(UIListening)
	}
	if eff.has(effUIConnecting) {
		s.transitionUI(UIConnecting)
	}
	if eff.has(effDispatch) {
		s.receive(ev.Data)
	}
}

// SendAudio sends one audio frame.
func (s *Session) SendAudio(p []byte) error { return s.send(TypeAudio, p) }

// SendVideo sends one video frame.
func (s *Session) SendVideo(p []byte) error { return s.send(TypeVideo, p) }

// Reconfigure replaces the connection settings, tears down the current
// transport and connects again. Channel bounds are fixed for the session.
func (s *Session) Reconfigure(cfg Config) error {
	var old Transport
	s.gate.exclusive(func() {
		s.mu.Lock()
		old = s.transport
		s.transport = nil
		s.gen++
		s.cfg.URL = cfg.URL
		s.cfg.Token = cfg.Token
		s.cfg.DeviceID = cfg.DeviceID
		if cfg.ReconnectInterval > 0 {
			s.cfg.ReconnectInterval = cfg.ReconnectInterval
			s.reconnect.interval = cfg.ReconnectInterval
		}
		s.reconnect.reset()
		s.mu.Unlock()
	})
	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("close previous transport", "error", err)
		}
	}

	s.setStatus(StatusDisconnected)
	s.transitionUI(UIConnecting)
	s.lc.Emit(lifecycle.EventConfigReloaded, cfg.URL)
	return s.Connect()
}

// Close shuts the session down. It cannot be reused afterwards.
func (s *Session) Close() error {
	s.cancel()

	s.mu.Lock()
	tr := s.transport
	s.transport = nil
	s.gen++
	s.mu.Unlock()

	s.setStatus(StatusDisconnected)
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// --- Internal ---

func (s *Session) send(t FrameType, p []byte) error {
	err := s.gate.Send(t, p)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			s.logger.Error("frame exceeds bound", "type", t, "size", len(p))
		}
		s.lc.Emit(lifecycle.EventFrameDropped, lifecycle.FrameData{Type: t.String(), Size: len(p), Err: err})
		return err
	}
	s.lc.Emit(lifecycle.EventFrameSent, lifecycle.FrameData{Type: t.String(), Size: len(p)})
	return nil
}

func (s *Session) receive(msg []byte) {
	f, err := Decode(msg)
	if err != nil {
		s.logger.Warn("dropping inbound message", "error", err)
		s.lc.Emit(lifecycle.EventFrameDropped, lifecycle.FrameData{Type: TypeUnknown.String(), Err: err})
		return
	}
	s.lc.Emit(lifecycle.EventFrameReceived, lifecycle.FrameData{Type: f.Type.String(), Size: len(f.Payload)})
	s.dispatcher.Dispatch(f)
}

func (s *Session) setStatus(st Status) {
	s.publishStatus(Status(s.status.Swap(int32(st))), st)
}

// markConnecting moves any status other than Connected to Connecting.
func (s *Session) markConnecting() (Status, bool) {
	for {
		cur := s.Status()
		if cur == StatusConnected {
			return cur, false
		}
		if s.status.CompareAndSwap(int32(cur), int32(StatusConnecting)) {
			return cur, true
		}
	}
}

func (s *Session) publishStatus(old, st Status) {
	if old == st {
		return
	}
	s.logger.Debug("status changed", "from", old, "to", st)
	s.lc.Emit(lifecycle.EventStatusChanged, lifecycle.StatusData{From: old.String(), To: st.String()})
}

func (s *Session) transitionUI(st UIState) {
	if s.deps.UI != nil {
		s.deps.UI.Transition(st)
	}
}

func (s *Session) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Session) emitter(gen uint64) func(Event) {
	return func(ev Event) {
		ev.gen = gen
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
		}
	}
}
