// Package server exposes the device status and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/neboloop/clawreach/internal/stream"
)

// Session is the part of *stream.Session the status page reads.
type Session interface {
	Status() stream.Status
	Config() stream.Config
}

// Indicator reports the current UI state.
type Indicator interface {
	State() (stream.UIState, time.Time)
}

// Options holds the dependencies of the router. Nil fields are omitted
// from the output.
type Options struct {
	Session   Session
	Indicator Indicator
	Metrics   http.Handler
	Version   string
	Logger    *slog.Logger
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status    string    `json:"status"`
	ServerURL string    `json:"server_url,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	TokenSet  bool      `json:"token_set"`
	UIState   string    `json:"ui_state,omitempty"`
	UISince   time.Time `json:"ui_since,omitzero"`
	Version   string    `json:"version,omitempty"`
}

// NewRouter returns the status router.
func NewRouter(o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/status", statusHandler(o))
	if o.Metrics != nil {
		r.Handle("/metrics", o.Metrics)
	}
	return r
}

func statusHandler(o Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{Status: stream.StatusDisconnected.String(), Version: o.Version}
		if o.Session != nil {
			cfg := o.Session.Config()
			resp.Status = o.Session.Status().String()
			resp.ServerURL = cfg.URL
			resp.DeviceID = cfg.DeviceID
			resp.TokenSet = cfg.Token != ""
		}
		if o.Indicator != nil {
			st, since := o.Indicator.State()
			resp.UIState = st.String()
			resp.UISince = since
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil && o.Logger != nil {
			o.Logger.Warn("write status", "error", err)
		}
	}
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}

	httpServer := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	logger.Info("status server ready", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
