package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/neboloop/clawreach/internal/stream"
)

// SendFunc hands one payload to the session, e.g. (*stream.Session).SendAudio.
type SendFunc func([]byte) error

// Pump paces a Source into a SendFunc. Frames the session refuses are
// dropped, never retried.
type Pump struct {
	name    string
	src     Source
	send    SendFunc
	limiter *rate.Limiter
	logger  *slog.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewPump sends at most one frame per interval.
func NewPump(name string, src Source, send SendFunc, interval time.Duration, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		name:    name,
		src:     src,
		send:    send,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger.With("component", "media", "pump", name),
	}
}

// Run pumps until the source is exhausted (nil) or ctx is done.
func (p *Pump) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next token lies past ctx's deadline.
			<-ctx.Done()
			return ctx.Err()
		}

		frame, err := p.src.Next()
		if errors.Is(err, io.EOF) {
			p.logger.Info("source exhausted", "sent", p.sent.Load(), "dropped", p.dropped.Load())
			return nil
		}
		if err != nil {
			return err
		}
		if len(frame) == 0 {
			continue
		}

		switch err := p.send(frame); {
		case err == nil:
			p.sent.Add(1)
		case errors.Is(err, stream.ErrNotConnected), errors.Is(err, stream.ErrBusy):
			p.dropped.Add(1)
		case errors.Is(err, stream.ErrPayloadTooLarge):
			p.dropped.Add(1)
			p.logger.Warn("frame too large for channel", "size", len(frame))
		default:
			p.dropped.Add(1)
			p.logger.Warn("send failed", "error", err)
		}
	}
}

// Stats returns how many frames were sent and dropped.
func (p *Pump) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}
