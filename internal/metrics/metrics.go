// Package metrics exports session lifecycle events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neboloop/clawreach/internal/lifecycle"
	"github.com/neboloop/clawreach/internal/stream"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "clawreach").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics, e.g. the device id.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// Collector owns a private registry fed by lifecycle events.
type Collector struct {
	registry *prometheus.Registry

	frames            *prometheus.CounterVec
	frameBytes        *prometheus.CounterVec
	drops             *prometheus.CounterVec
	status            *prometheus.GaugeVec
	statusChanges     *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	transportErrors   prometheus.Counter
	configReloads     prometheus.Counter
	uiState           *prometheus.GaugeVec
}

var (
	statuses = []stream.Status{stream.StatusDisconnected, stream.StatusConnecting, stream.StatusConnected, stream.StatusError}
	uiStates = []stream.UIState{stream.UIConnecting, stream.UIListening, stream.UISpeaking}
)

// NewCollector registers the session metrics plus the Go runtime and
// process collectors on a new registry.
func NewCollector(opts ...Option) *Collector {
	cfg := Config{Namespace: "clawreach"}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,

		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_total",
			Help:        "Frames by direction (sent, dropped, received) and type",
			ConstLabels: cfg.ConstLabels,
		}, []string{"direction", "type"}),

		frameBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frame_payload_bytes_total",
			Help:        "Payload bytes by direction and type",
			ConstLabels: cfg.ConstLabels,
		}, []string{"direction", "type"}),

		drops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frame_drops_total",
			Help:        "Dropped frames by type and reason",
			ConstLabels: cfg.ConstLabels,
		}, []string{"type", "reason"}),

		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "connection_status",
			Help:        "1 for the current connection status, 0 otherwise",
			ConstLabels: cfg.ConstLabels,
		}, []string{"status"}),

		statusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "status_changes_total",
			Help:        "Connection status transitions by target status",
			ConstLabels: cfg.ConstLabels,
		}, []string{"to"}),

		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "reconnect_attempts_total",
			Help:        "Reconnect attempts started by the poll loop",
			ConstLabels: cfg.ConstLabels,
		}),

		transportErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "transport_errors_total",
			Help:        "Transport errors reported by the connection",
			ConstLabels: cfg.ConstLabels,
		}),

		configReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "config_reloads_total",
			Help:        "Session reconfigurations",
			ConstLabels: cfg.ConstLabels,
		}),

		uiState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "ui_state",
			Help:        "1 for the current UI state, 0 otherwise",
			ConstLabels: cfg.ConstLabels,
		}, []string{"state"}),
	}

	c.setStatus(stream.StatusDisconnected.String())
	c.setUIState(stream.UIConnecting.String())
	return c
}

// Attach subscribes the collector to lm.
func (c *Collector) Attach(lm *lifecycle.Manager) {
	lm.OnStatusChanged(func(d lifecycle.StatusData) {
		c.statusChanges.WithLabelValues(d.To).Inc()
		c.setStatus(d.To)
	})
	lm.OnReconnectAttempt(c.reconnectAttempts.Inc)
	lm.On(lifecycle.EventTransportError, func(lifecycle.Event, any) { c.transportErrors.Inc() })
	lm.On(lifecycle.EventConfigReloaded, func(lifecycle.Event, any) { c.configReloads.Inc() })
	lm.OnUIState(c.setUIState)
	lm.OnFrame(c.observeFrame)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) observeFrame(e lifecycle.Event, d lifecycle.FrameData) {
	var direction string
	switch e {
	case lifecycle.EventFrameSent:
		direction = "sent"
	case lifecycle.EventFrameReceived:
		direction = "received"
	case lifecycle.EventFrameDropped:
		direction = "dropped"
		c.drops.WithLabelValues(d.Type, dropReason(d.Err)).Inc()
	default:
		return
	}
	c.frames.WithLabelValues(direction, d.Type).Inc()
	c.frameBytes.WithLabelValues(direction, d.Type).Add(float64(d.Size))
}

func (c *Collector) setStatus(current string) {
	for _, st := range statuses {
		c.status.WithLabelValues(st.String()).Set(boolValue(st.String() == current))
	}
}

func (c *Collector) setUIState(current string) {
	for _, st := range uiStates {
		c.uiState.WithLabelValues(st.String()).Set(boolValue(st.String() == current))
	}
}

func dropReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, stream.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, stream.ErrBusy):
		return "busy"
	case errors.Is(err, stream.ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, stream.ErrTransport):
		return "transport"
	case errors.Is(err, stream.ErrFraming):
		return "framing"
	}
	return "other"
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
