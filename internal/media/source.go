// Package media feeds the session from files and streams, standing in for
// the device microphone, camera and speaker.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// AudioFrameSize is one 60 ms frame of 16 kHz audio.
const AudioFrameSize = 960

// Source yields frames until it returns io.EOF.
type Source interface {
	Next() ([]byte, error)
}

// FrameReader cuts a byte stream into fixed-size frames. The returned slice
// is reused by the next call. A short final frame is returned as is.
type FrameReader struct {
	r    io.Reader
	buf  []byte
	done bool
}

// NewFrameReader reads frames of size bytes from r.
func NewFrameReader(r io.Reader, size int) *FrameReader {
	return &FrameReader{r: r, buf: make([]byte, size)}
}

func (f *FrameReader) Next() ([]byte, error) {
	if f.done {
		return nil, io.EOF
	}
	n, err := io.ReadFull(f.r, f.buf)
	switch {
	case err == nil:
		return f.buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		f.done = true
		return f.buf[:n], nil
	case errors.Is(err, io.EOF):
		f.done = true
		return nil, io.EOF
	}
	return nil, err
}

var ErrNoImages = errors.New("no images match")

// ImageCycler returns the files matching a glob in name order, forever.
type ImageCycler struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewImageCycler expands pattern once.
func NewImageCycler(pattern string) (*ImageCycler, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoImages, pattern)
	}
	sort.Strings(files)
	return &ImageCycler{files: files}, nil
}

// Len returns the number of images in the cycle.
func (c *ImageCycler) Len() int { return len(c.files) }

func (c *ImageCycler) Next() ([]byte, error) {
	c.mu.Lock()
	name := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)
	c.mu.Unlock()

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
