package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neboloop/clawreach/internal/lifecycle"
	"github.com/neboloop/clawreach/internal/stream"
)

func TestCollectorCountsFrames(t *testing.T) {
	lm := lifecycle.New()
	c := NewCollector()
	c.Attach(lm)

	lm.Emit(lifecycle.EventFrameSent, lifecycle.FrameData{Type: "audio", Size: 960})
	lm.Emit(lifecycle.EventFrameSent, lifecycle.FrameData{Type: "audio", Size: 100})
	lm.Emit(lifecycle.EventFrameReceived, lifecycle.FrameData{Type: "state", Size: 9})
	lm.Emit(lifecycle.EventFrameDropped, lifecycle.FrameData{Type: "video", Size: 40000, Err: fmt.Errorf("%w: 40000 > 32768", stream.ErrPayloadTooLarge)})
	lm.Emit(lifecycle.EventFrameDropped, lifecycle.FrameData{Type: "audio", Err: stream.ErrBusy})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.frames.WithLabelValues("sent", "audio")))
	assert.Equal(t, 1060.0, testutil.ToFloat64(c.frameBytes.WithLabelValues("sent", "audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("received", "state")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.drops.WithLabelValues("video", "too_large")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.drops.WithLabelValues("audio", "busy")))
}

func TestCollectorTracksStatus(t *testing.T) {
	lm := lifecycle.New()
	c := NewCollector()
	c.Attach(lm)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues("disconnected")))

	lm.Emit(lifecycle.EventStatusChanged, lifecycle.StatusData{From: "disconnected", To: "connecting"})
	lm.Emit(lifecycle.EventStatusChanged, lifecycle.StatusData{From: "connecting", To: "connected"})
	lm.Emit(lifecycle.EventReconnectAttempt, nil)
	lm.Emit(lifecycle.EventTransportError, errors.New("reset"))
	lm.Emit(lifecycle.EventUIState, "speaking")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.status.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.status.WithLabelValues("disconnected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.statusChanges.WithLabelValues("connected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transportErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uiState.WithLabelValues("speaking")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.uiState.WithLabelValues("connecting")))
}

func TestDropReason(t *testing.T) {
	tests := map[string]error{
		"not_connected": stream.ErrNotConnected,
		"busy":          stream.ErrBusy,
		"too_large":     stream.ErrPayloadTooLarge,
		"transport":     fmt.Errorf("%w: %w", stream.ErrTransport, io.ErrClosedPipe),
		"framing":       stream.ErrEmptyMessage,
		"other":         errors.New("x"),
		"unknown":       nil,
	}
	for want, err := range tests {
		assert.Equal(t, want, dropReason(err), "dropReason(%v)", err)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(WithNamespace("test"))
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_connection_status{status="disconnected"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
