// Package stream implements the clawreach streaming session: a single
// WebSocket carrying type-tagged binary frames. Audio and video go up,
// synthesized audio, display commands and state tokens come down.
package stream

import (
	"errors"
	"fmt"
)

// FrameType is the first byte of every binary message.
type FrameType uint8

// Frame type constants.
const (
	TypeUnknown FrameType = 0x00
	TypeAudio   FrameType = 0x01
	TypeVideo   FrameType = 0x02
	TypeDisplay FrameType = 0x03
	TypeState   FrameType = 0x04
)

func (t FrameType) String() string {
	switch t {
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	case TypeDisplay:
		return "display"
	case TypeState:
		return "state"
	default:
		return "unknown"
	}
}

// Default per-deployment payload bounds.
const (
	MaxAudioPayload = 960       // 60ms at 16kHz
	MaxVideoPayload = 32 * 1024 // one JPEG frame
)

var (
	ErrFraming         = errors.New("framing error")
	ErrEmptyMessage    = fmt.Errorf("%w: empty message", ErrFraming)
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrFraming)
)

// Frame is a decoded message. Tag holds the raw type byte so frames of a
// type this client does not know are still observable.
type Frame struct {
	Type    FrameType
	Tag     uint8
	Payload []byte
}

// Encode returns [t] + payload in a new slice.
func Encode(t FrameType, payload []byte, max int) ([]byte, error) {
	return AppendFrame(nil, t, payload, max)
}

// AppendFrame writes the frame into dst[:0]. When cap(dst) is large enough no
// allocation takes place, which lets the send gate reuse its scratch buffers.
func AppendFrame(dst []byte, t FrameType, payload []byte, max int) ([]byte, error) {
	if len(payload) > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), max)
	}
	dst = append(dst[:0], byte(t))
	return append(dst, payload...), nil
}

// Decode splits a message into its type and payload. The payload aliases msg.
func Decode(msg []byte) (Frame, error) {
	if len(msg) == 0 {
		return Frame{}, ErrEmptyMessage
	}

	f := Frame{Tag: msg[0], Payload: msg[1:]}
	switch t := FrameType(msg[0]); t {
	case TypeAudio, TypeVideo, TypeDisplay, TypeState:
		f.Type = t
	default:
		f.Type = TypeUnknown
	}
	return f, nil
}
