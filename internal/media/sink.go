package media

import (
	"io"
	"log/slog"
	"sync"
)

// AudioSink implements stream.AudioDecoder by writing received audio
// payloads to a writer, e.g. a file or a player's stdin.
type AudioSink struct {
	mu     sync.Mutex
	w      io.Writer
	n      int64
	failed bool
	logger *slog.Logger
}

// NewAudioSink writes to w.
func NewAudioSink(w io.Writer, logger *slog.Logger) *AudioSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioSink{w: w, logger: logger.With("component", "media")}
}

// Decode writes p. After the first write error the sink logs once and
// discards further audio.
func (s *AudioSink) Decode(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	n, err := s.w.Write(p)
	s.n += int64(n)
	if err != nil {
		s.failed = true
		s.logger.Error("audio sink write failed, discarding further audio", "error", err)
	}
}

// Written returns the number of bytes written.
func (s *AudioSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
