// Package hashutil provides streamed BLAKE3 hashing for the transfer
// state machine: a full-file pre-hash computed on a blocking worker for
// the sender, and an incremental hasher fed chunk-by-chunk on the
// receiver's driver.
package hashutil

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// Hasher wraps an incremental BLAKE3 hash. The zero value is not usable;
// construct with NewHasher.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a fresh incremental BLAKE3 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(32, nil)}
}

// Write feeds chunk into the running hash. It never returns an error; the
// signature matches io.Writer so a Hasher can be used as the writer side
// of an io.MultiWriter / io.TeeReader.
func (h *Hasher) Write(chunk []byte) (int, error) {
	return h.h.Write(chunk)
}

// SumHex returns the current hex-encoded digest.
func (h *Hasher) SumHex() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// FileResult carries the outcome of a background whole-file hash.
type FileResult struct {
	Hex string
	Err error
}

// HashFileAsync computes the BLAKE3 digest of the file at path on a
// blocking worker goroutine and delivers the result on the returned
// channel. The async driver awaits this channel exactly once, before
// opening the network connection, so file I/O and CPU-bound hashing never
// stall the event loop.
func HashFileAsync(path string) <-chan FileResult {
	out := make(chan FileResult, 1)

	go func() {
		logger := logrus.WithFields(logrus.Fields{
			"function": "HashFileAsync",
			"path":     path,
		})
		logger.Debug("starting background BLAKE3 hash")

		digest, err := hashFile(path)
		if err != nil {
			logger.WithError(err).Error("background BLAKE3 hash failed")
			out <- FileResult{Err: fmt.Errorf("hash file: %w", err)}
			return
		}

		logger.WithField("blake3", digest).Debug("background BLAKE3 hash complete")
		out <- FileResult{Hex: digest}
	}()

	return out
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
