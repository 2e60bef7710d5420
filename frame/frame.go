// Package frame implements length-prefixed framing over an async byte
// stream, as used by the Noise handshake and transport layers.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// MaxPayload is the largest frame payload the codec will send or accept,
// matching the Noise transport message maximum.
const MaxPayload = 65535

// headerSize is the length of the big-endian length prefix.
const headerSize = 4

// ErrFrameTooLarge indicates a frame's length prefix (or the payload
// handed to SendFrame) exceeds MaxPayload.
var ErrFrameTooLarge = errors.New("frame exceeds maximum payload size")

// SendFrame writes payload as a single [u32 BE length][payload] frame.
func SendFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		logrus.WithFields(logrus.Fields{
			"function": "SendFrame",
			"size":     len(payload),
			"max":      MaxPayload,
		}).Error("frame payload too large")
		return ErrFrameTooLarge
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}

	if len(payload) == 0 {
		return nil
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}

	return nil
}

// RecvFrame reads a single frame and returns its payload. A frame of
// length zero is legal and returns an empty, non-nil slice.
func RecvFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxPayload {
		logrus.WithFields(logrus.Fields{
			"function": "RecvFrame",
			"length":   length,
			"max":      MaxPayload,
		}).Error("peer announced an oversized frame")
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
	}

	return payload, nil
}
