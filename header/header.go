// Package header implements the FileHeader record exchanged as the first
// encrypted application message of a transfer.
package header

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrEmptyInput indicates the wire bytes handed to FromWire were empty.
var ErrEmptyInput = errors.New("empty file header")

// FileHeader is the canonical single-line JSON record a sender transmits
// before any file data: the basename of the file, its size in bytes, and
// the hex-encoded BLAKE3 digest of its full contents.
type FileHeader struct {
	Name   string `json:"name"`
	Size   uint64 `json:"size"`
	Blake3 string `json:"blake3"`
}

// ToWire renders the header as canonical JSON followed by a single
// newline, the shape it travels as the plaintext of the first Noise
// transport message.
func (h FileHeader) ToWire() ([]byte, error) {
	// Name must never carry path components onto the wire.
	h.Name = filepath.Base(h.Name)

	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal file header: %w", err)
	}

	raw = append(raw, '\n')
	return raw, nil
}

// FromWire parses a FileHeader out of a newline-terminated JSON line.
// Leading/trailing whitespace is trimmed before parsing.
func FromWire(data []byte) (FileHeader, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "FromWire",
		"package":  "header",
	})

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return FileHeader{}, ErrEmptyInput
	}

	var h FileHeader
	if err := json.Unmarshal([]byte(trimmed), &h); err != nil {
		logger.WithError(err).Warn("failed to parse file header JSON")
		return FileHeader{}, fmt.Errorf("parse file header: %w", err)
	}

	h.Name = filepath.Base(h.Name)

	logger.WithFields(logrus.Fields{
		"name": h.Name,
		"size": h.Size,
	}).Debug("file header parsed")

	return h, nil
}
