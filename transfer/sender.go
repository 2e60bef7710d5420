package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/p2psh/crypto"
	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/hashutil"
	"github.com/opd-ai/p2psh/header"
)

// prepareUpload stats and hashes filePath, producing the header the
// uploader will send once a session is established. It runs before the
// ticket is published or the dial is attempted, and waits once for the
// background hash worker to finish.
func prepareUpload(cfg Config, filePath string) (header.FileHeader, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		cfg.emit(event.Error(event.ErrIO, err))
		return header.FileHeader{}, fmt.Errorf("transfer: stat file: %w", err)
	}
	size := uint64(info.Size())

	cfg.emit(event.Status(fmt.Sprintf("hashing %s", filepath.Base(filePath))))
	result := <-hashutil.HashFileAsync(filePath)
	if result.Err != nil {
		cfg.emit(event.Error(event.ErrIO, result.Err))
		return header.FileHeader{}, fmt.Errorf("transfer: hash file: %w", result.Err)
	}

	recheck, err := os.Stat(filePath)
	if err != nil || recheck.Size() != info.Size() {
		cfg.emit(event.Error(event.ErrLocalFileChanged, ErrLocalFileChanged))
		return header.FileHeader{}, ErrLocalFileChanged
	}

	return header.FileHeader{Name: filepath.Base(filePath), Size: size, Blake3: result.Hex}, nil
}

// upload drives the HEADER -> ACK -> DATA -> TAIL_ACK -> DONE phases from
// the uploader's side of an established session, using a header already
// produced by prepareUpload.
func (s *session) upload(fh header.FileHeader, filePath string) error {
	wire, err := fh.ToWire()
	if err != nil {
		return fmt.Errorf("transfer: encode header: %w", err)
	}
	if err := s.sendSealed(wire); err != nil {
		s.emit(event.Error(event.ErrDialFailed, err))
		return err
	}

	if err := s.recvAck(); err != nil {
		if errors.Is(err, ErrReceiverRejected) {
			s.emit(event.Error(event.ErrReceiverRejected, err))
		} else {
			s.emit(event.Error(event.ErrPeerClosed, err))
		}
		return err
	}

	s.emit(event.Status(fmt.Sprintf("sending %s", fh.Name)))

	if err := s.sendFile(filePath, fh.Size); err != nil {
		return err
	}

	if err := s.recvDone(); err != nil {
		if errors.Is(err, ErrTailAckMismatch) {
			s.emit(event.Error(event.ErrTailAckMismatch, err))
		} else {
			s.emit(event.Error(event.ErrPeerClosed, err))
		}
		return err
	}

	s.emit(event.Completed(fh.Name, fh.Size, ""))
	logrus.WithFields(logrus.Fields{
		"function": "session.upload",
		"file":     fh.Name,
		"size":     fh.Size,
	}).Info("upload completed")

	return nil
}

// sendFile streams the file in cfg.ChunkSize pieces, emitting rate-limited
// progress events.
func (s *session) sendFile(filePath string, size uint64) error {
	f, err := os.Open(filePath)
	if err != nil {
		s.emit(event.Error(event.ErrIO, err))
		return fmt.Errorf("transfer: open file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, s.cfg.ChunkSize)
	var sent uint64

	for sent < size {
		n, err := f.Read(buf)
		if n > 0 {
			sendErr := s.sendSealed(buf[:n])
			crypto.ZeroBytes(buf[:n])
			if sendErr != nil {
				s.emit(event.Error(event.ErrIO, sendErr))
				return sendErr
			}
			sent += uint64(n)

			if s.cfg.allowProgress(sent >= size) {
				s.emit(event.Progress(sent, size))
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			s.emit(event.Error(event.ErrIO, err))
			return fmt.Errorf("transfer: read file: %w", err)
		}
	}

	if sent != size {
		s.emit(event.Error(event.ErrLocalFileChanged, ErrLocalFileChanged))
		return ErrLocalFileChanged
	}

	if err := s.conn.FinishWrite(); err != nil {
		s.emit(event.Error(event.ErrIO, err))
		return fmt.Errorf("transfer: finish write: %w", err)
	}

	return nil
}
