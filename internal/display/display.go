// Package display applies the JSON display commands the server sends.
package display

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var ErrMalformed = errors.New("malformed display command")

// Command types.
const (
	TypeText  = "text"
	TypeEmoji = "emoji"
	TypeImage = "image"
	TypeClear = "clear"
)

// Command is one display document. Image is base64 in JSON.
type Command struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Emoji      string `json:"emoji,omitempty"`
	Image      []byte `json:"image,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// Parse decodes and checks a display document.
func Parse(doc []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(doc, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if c.DurationMS < 0 {
		return Command{}, fmt.Errorf("%w: negative duration_ms", ErrMalformed)
	}
	switch c.Type {
	case TypeText:
		if c.Text == "" {
			return Command{}, fmt.Errorf("%w: text command without text", ErrMalformed)
		}
	case TypeEmoji:
		if c.Emoji == "" {
			return Command{}, fmt.Errorf("%w: emoji command without emoji", ErrMalformed)
		}
	case TypeImage:
		if len(c.Image) == 0 {
			return Command{}, fmt.Errorf("%w: image command without image", ErrMalformed)
		}
	case TypeClear:
	case "":
		return Command{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, c.Type)
	}
	return c, nil
}

// Handler implements stream.DisplayHandler by rendering commands as text
// lines on a writer.
type Handler struct {
	mu      sync.Mutex
	w       io.Writer
	current *Command
	expires time.Time

	logger *slog.Logger
	now    func() time.Time
}

// New returns a handler rendering to w. A nil w renders nothing.
func New(w io.Writer, logger *slog.Logger) *Handler {
	if w == nil {
		w = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{w: w, logger: logger.With("component", "display"), now: time.Now}
}

// Apply parses doc and shows it. Malformed documents change nothing.
func (h *Handler) Apply(doc []byte) error {
	c, err := Parse(doc)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if c.Type == TypeClear {
		h.current, h.expires = nil, time.Time{}
	} else {
		h.current = &c
		h.expires = time.Time{}
		if c.DurationMS > 0 {
			h.expires = h.now().Add(time.Duration(c.DurationMS) * time.Millisecond)
		}
	}
	h.logger.Debug("display command", "type", c.Type, "duration_ms", c.DurationMS)
	_, err = fmt.Fprintln(h.w, render(c))
	return err
}

// Current returns the command on screen, if any. Commands with a duration
// disappear once it elapses.
func (h *Handler) Current() (Command, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return Command{}, false
	}
	if !h.expires.IsZero() && !h.now().Before(h.expires) {
		h.current, h.expires = nil, time.Time{}
		return Command{}, false
	}
	return *h.current, true
}

func render(c Command) string {
	switch c.Type {
	case TypeText:
		return "[display] " + c.Text
	case TypeEmoji:
		return "[display] " + c.Emoji
	case TypeImage:
		return fmt.Sprintf("[display] image %s, %d bytes", http.DetectContentType(c.Image), len(c.Image))
	default:
		return "[display] cleared"
	}
}
