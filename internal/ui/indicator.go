// Package ui tracks the visual state the device would show: connecting,
// listening or speaking.
package ui

import (
	"log/slog"
	"sync"
	"time"

	"github.com/neboloop/clawreach/internal/lifecycle"
	"github.com/neboloop/clawreach/internal/stream"
)

// Indicator implements stream.UI. It logs transitions and publishes them
// as lifecycle.EventUIState.
type Indicator struct {
	mu    sync.Mutex
	state stream.UIState
	since time.Time

	lc     *lifecycle.Manager
	logger *slog.Logger
	now    func() time.Time
}

// New returns an indicator in the connecting state.
func New(lc *lifecycle.Manager, logger *slog.Logger) *Indicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{
		state:  stream.UIConnecting,
		since:  time.Now(),
		lc:     lc,
		logger: logger.With("component", "ui"),
		now:    time.Now,
	}
}

// Transition switches to st. Repeating the current state is a no-op.
func (i *Indicator) Transition(st stream.UIState) {
	i.mu.Lock()
	if st == i.state {
		i.mu.Unlock()
		return
	}
	prev, held := i.state, i.now().Sub(i.since)
	i.state, i.since = st, i.now()
	i.mu.Unlock()

	i.logger.Info("ui state", "state", st, "previous", prev, "held", held.Round(time.Millisecond))
	i.lc.Emit(lifecycle.EventUIState, st.String())
}

// State returns the current state and when it was entered.
func (i *Indicator) State() (stream.UIState, time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state, i.since
}
