package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrBusy         = errors.New("send gate busy")
	ErrTransport    = errors.New("transport error")
)

// ChannelConfig bounds one producer type.
type ChannelConfig struct {
	MaxPayload     int
	AcquireTimeout time.Duration // waiting for the scratch buffer and the hand-off
	WriteTimeout   time.Duration // transport write deadline
}

// DefaultAudioChannel and DefaultVideoChannel match the firmware budgets.
var (
	DefaultAudioChannel = ChannelConfig{MaxPayload: MaxAudioPayload, AcquireTimeout: 10 * time.Millisecond, WriteTimeout: 100 * time.Millisecond}
	DefaultVideoChannel = ChannelConfig{MaxPayload: MaxVideoPayload, AcquireTimeout: 50 * time.Millisecond, WriteTimeout: 500 * time.Millisecond}
)

// channel owns the scratch buffer of one producer type. lock is held from
// encoding until the transport returns, so two producers of the same type
// never interleave.
type channel struct {
	typ  FrameType
	cfg  ChannelConfig
	lock *semaphore.Weighted
	buf  []byte
}

func newChannel(t FrameType, cfg ChannelConfig) *channel {
	return &channel{
		typ:  t,
		cfg:  cfg,
		lock: semaphore.NewWeighted(1),
		buf:  make([]byte, 0, cfg.MaxPayload+1),
	}
}

// Gate lets exactly one producer at a time hand a frame to the transport.
type Gate struct {
	handoff   *semaphore.Weighted
	audio     *channel
	video     *channel
	status    func() Status
	transport func() Transport
}

func newGate(audio, video ChannelConfig, status func() Status, transport func() Transport) *Gate {
	return &Gate{
		handoff:   semaphore.NewWeighted(1),
		audio:     newChannel(TypeAudio, audio),
		video:     newChannel(TypeVideo, video),
		status:    status,
		transport: transport,
	}
}

// Capacity reports the scratch buffer capacity for t, or 0 if t cannot be sent.
func (g *Gate) Capacity(t FrameType) int {
	if ch := g.channel(t); ch != nil {
		return cap(ch.buf)
	}
	return 0
}

func (g *Gate) channel(t FrameType) *channel {
	switch t {
	case TypeAudio:
		return g.audio
	case TypeVideo:
		return g.video
	}
	return nil
}

// Send encodes payload as a t frame and writes it. A frame that cannot be
// sent right now is dropped with ErrNotConnected or ErrBusy; callers are not
// expected to retry.
func (g *Gate) Send(t FrameType, payload []byte) error {
	ch := g.channel(t)
	if ch == nil {
		return fmt.Errorf("%w: cannot send %s frames", ErrFraming, t)
	}
	if g.status() != StatusConnected {
		return ErrNotConnected
	}
	if len(payload) > ch.cfg.MaxPayload {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), ch.cfg.MaxPayload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ch.cfg.AcquireTimeout)
	defer cancel()

	if !acquire(ctx, ch.lock, ch.cfg.AcquireTimeout) {
		return ErrBusy
	}
	defer ch.lock.Release(1)

	buf, err := AppendFrame(ch.buf, t, payload, ch.cfg.MaxPayload)
	if err != nil {
		return err
	}

	if !acquire(ctx, g.handoff, ch.cfg.AcquireTimeout) {
		return ErrBusy
	}
	defer g.handoff.Release(1)

	tr := g.transport()
	if tr == nil {
		return ErrNotConnected
	}
	if err := tr.SendBinary(buf, ch.cfg.WriteTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// exclusive runs fn while holding the hand-off lock, waiting as long as needed.
// Used to swap the transport without cutting a write in half.
func (g *Gate) exclusive(fn func()) {
	_ = g.handoff.Acquire(context.Background(), 1)
	defer g.handoff.Release(1)
	fn()
}

func acquire(ctx context.Context, sem *semaphore.Weighted, timeout time.Duration) bool {
	if timeout <= 0 {
		return sem.TryAcquire(1)
	}
	return sem.Acquire(ctx, 1) == nil
}
