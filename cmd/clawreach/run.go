package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neboloop/clawreach/internal/config"
	"github.com/neboloop/clawreach/internal/display"
	"github.com/neboloop/clawreach/internal/lifecycle"
	"github.com/neboloop/clawreach/internal/media"
	"github.com/neboloop/clawreach/internal/metrics"
	"github.com/neboloop/clawreach/internal/server"
	"github.com/neboloop/clawreach/internal/stream"
	"github.com/neboloop/clawreach/internal/ui"
)

// audioFrameInterval is the duration of one 960-byte audio frame.
const audioFrameInterval = 60 * time.Millisecond

type runOptions struct {
	audioIn    string  // file or "-" for stdin
	videoGlob  string  // JPEG files to cycle through
	videoFPS   float64 // video frames per second
	audioOut   string  // file or "-" for stdout
	statusAddr string  // e.g. "127.0.0.1:8088", empty disables
	noDisplay  bool
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	cmd.Flags().StringVar(&o.audioIn, "audio", "", "stream raw audio frames from FILE (- for stdin)")
	cmd.Flags().StringVar(&o.videoGlob, "video", "", "stream JPEG files matching GLOB in a loop")
	cmd.Flags().Float64Var(&o.videoFPS, "video-fps", 2, "video frames per second")
	cmd.Flags().StringVar(&o.audioOut, "audio-out", "", "write received audio to FILE (- for stdout)")
	cmd.Flags().StringVar(&o.statusAddr, "status-addr", "", "serve /status and /metrics on ADDR")
	cmd.Flags().BoolVar(&o.noDisplay, "no-display", false, "do not print display commands")
}

// RunCmd is the explicit form of the root command.
func RunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the server and stream until interrupted",
		Long: `Connect to the configured server and stream until interrupted.

Examples:
  clawreach run
  clawreach run --audio mic.raw --audio-out reply.raw
  arecord -f S16_LE -r 16000 -c 1 -t raw | clawreach run --audio -
  clawreach run --video 'frames/*.jpg' --video-fps 5 --status-addr 127.0.0.1:8088`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd.Context(), opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

func runDevice(ctx context.Context, o runOptions) error {
	if o.videoGlob != "" && o.videoFPS <= 0 {
		return fmt.Errorf("--video-fps must be positive")
	}
	if o.audioIn == "-" && o.audioOut == "-" {
		return fmt.Errorf("--audio and --audio-out cannot both use the terminal")
	}

	logger, err := setupLogger()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to initialize data directory: %w", err)
	}

	lockFile, err := acquireLock(filepath.Dir(store.Path()))
	if err != nil {
		return err
	}
	defer releaseLock(lockFile)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var audioIn io.Reader
	if o.audioIn != "" {
		r, closeIn, err := openInput(o.audioIn)
		if err != nil {
			return err
		}
		defer closeIn()
		audioIn = r
	}
	var cycler *media.ImageCycler
	if o.videoGlob != "" {
		if cycler, err = media.NewImageCycler(o.videoGlob); err != nil {
			return err
		}
	}

	cfg, err := loadDeviceConfig(store, logger)
	if err != nil {
		return err
	}
	if cfg.ServerURL == "" {
		logger.Warn("no server URL configured, waiting for provisioning",
			"config", store.Path(),
			"hint", `clawreach server -u wss://host/clawreach, or clawreach provision '{"url":"wss://host/clawreach","token":"..."}'`)
		cfg, err = store.WaitForURL(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	lm := lifecycle.New()
	collector := metrics.NewCollector(metrics.WithConstLabels(prometheus.Labels{"device_id": cfg.DeviceID}))
	collector.Attach(lm)

	indicator := ui.New(lm, logger)

	var displayOut io.Writer = os.Stdout
	if o.noDisplay || o.audioOut == "-" {
		displayOut = nil
	}

	streamLogger := logger.With("component", "stream")
	deps := stream.Deps{
		Display:   display.New(displayOut, logger),
		UI:        indicator,
		Transport: stream.WebSocketTransport(streamLogger, cfg.TransportOptions()...),
	}
	if o.audioOut != "" {
		w, closeOut, err := openOutput(o.audioOut)
		if err != nil {
			return err
		}
		defer closeOut()
		deps.Audio = media.NewAudioSink(w, logger)
	}

	sess := stream.New(cfg.Stream(), deps,
		stream.WithLogger(streamLogger),
		stream.WithLifecycle(lm))
	defer sess.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := sess.Connect(); err != nil {
		// The poll loop keeps retrying.
		logger.Warn("initial connect failed", "error", err)
	}

	if audioIn != nil {
		pump := media.NewPump("audio", media.NewFrameReader(audioIn, media.AudioFrameSize), sess.SendAudio, audioFrameInterval, logger)
		g.Go(func() error { return ignoreCanceled(pump.Run(ctx)) })
	}

	if cycler != nil {
		logger.Info("streaming video", "images", cycler.Len(), "fps", o.videoFPS)
		interval := time.Duration(float64(time.Second) / o.videoFPS)
		pump := media.NewPump("video", cycler, sess.SendVideo, interval, logger)
		g.Go(func() error { return ignoreCanceled(pump.Run(ctx)) })
	}

	if o.statusAddr != "" {
		router := server.NewRouter(server.Options{
			Session:   sess,
			Indicator: indicator,
			Metrics:   collector.Handler(),
			Version:   AppVersion,
			Logger:    logger,
		})
		g.Go(func() error { return server.Run(ctx, o.statusAddr, router, logger) })
	}

	g.Go(func() error {
		return ignoreCanceled(watchConfig(ctx, store, sess, cfg, logger))
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// loadDeviceConfig loads the config, persists a new device id on first run
// and applies environment overrides.
func loadDeviceConfig(store *config.Store, logger *slog.Logger) (*config.Config, error) {
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	if cfg.EnsureDeviceID() {
		logger.Info("generated device id", "device_id", cfg.DeviceID)
		if err := store.Save(cfg); err != nil {
			return nil, fmt.Errorf("save device id: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// watchConfig reconfigures the session whenever the connection settings in
// the config file change.
func watchConfig(ctx context.Context, store *config.Store, sess *stream.Session, current *config.Config, logger *slog.Logger) error {
	var mu sync.Mutex
	return store.Watch(ctx, func(next *config.Config) {
		next.ApplyEnv()

		mu.Lock()
		defer mu.Unlock()
		if next.ServerURL == "" || current.SameConnection(next) {
			return
		}
		logger.Info("config changed, reconnecting", "url", next.ServerURL)
		if err := sess.Reconfigure(next.Stream()); err != nil {
			logger.Warn("reconnect after config change failed", "error", err)
		}
		current = next
	})
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(name string) (io.Writer, func(), error) {
	if name == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
