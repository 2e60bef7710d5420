package transfer

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/p2psh/atomicfile"
	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/hashutil"
	"github.com/opd-ai/p2psh/header"
)

// download drives the HEADER -> ACK -> DATA -> TAIL_ACK -> DONE phases
// from the downloader's side of an established session, writing the
// result under outputDir. A header-decode or destination-prep failure
// simply returns the error; the original protocol has no reject message,
// so the peer observes this as a closed connection.
func (s *session) download(outputDir string) error {
	wire, err := s.recvSealed()
	if err != nil {
		s.emit(event.Error(event.ErrPeerClosed, err))
		return err
	}

	fh, err := header.FromWire(wire)
	if err != nil {
		s.emit(event.Error(event.ErrBadTicket, err))
		return fmt.Errorf("transfer: decode header: %w", err)
	}

	dest, err := atomicfile.PrepareDestination(outputDir, fh.Name)
	if err != nil {
		s.emit(event.Error(event.ErrIO, err))
		return fmt.Errorf("transfer: prepare destination: %w", err)
	}

	if err := s.sendOK(); err != nil {
		dest.Cleanup()
		return err
	}

	s.emit(event.Status(fmt.Sprintf("receiving %s", fh.Name)))

	if err := s.receiveFile(fh, dest); err != nil {
		dest.Cleanup()
		return err
	}

	s.emit(event.Completed(fh.Name, fh.Size, dest.Final))
	logrus.WithFields(logrus.Fields{
		"function": "session.download",
		"file":     fh.Name,
		"saved_to": dest.Final,
	}).Info("download completed")

	return nil
}

// receiveFile reads exactly fh.Size bytes of DATA-phase frames into
// dest.Part, verifies the running hash against fh.Blake3, commits the file
// to its final path, and sends the single DONE tail acknowledgment. On any
// failure before commit, no wire message is sent; the caller removes the
// temp file.
func (s *session) receiveFile(fh header.FileHeader, dest atomicfile.Destination) error {
	out, err := os.OpenFile(dest.Part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.emit(event.Error(event.ErrIO, err))
		return fmt.Errorf("transfer: open part file: %w", err)
	}
	defer out.Close()

	hasher := hashutil.NewHasher()
	var received uint64

	for received < fh.Size {
		chunk, err := s.recvSealed()
		if err != nil {
			s.emit(event.Error(event.ErrIncompleteTransfer, err))
			return ErrIncompleteTransfer
		}
		if _, err := out.Write(chunk); err != nil {
			s.emit(event.Error(event.ErrIO, err))
			return fmt.Errorf("transfer: write chunk: %w", err)
		}
		hasher.Write(chunk)
		received += uint64(len(chunk))

		if s.cfg.allowProgress(received >= fh.Size) {
			s.emit(event.Progress(received, fh.Size))
		}
	}

	if err := out.Close(); err != nil {
		s.emit(event.Error(event.ErrIO, err))
		return fmt.Errorf("transfer: close part file: %w", err)
	}

	sum := hasher.SumHex()
	if sum != fh.Blake3 {
		s.emit(event.Error(event.ErrChecksumMismatch, ErrChecksumMismatch))
		return ErrChecksumMismatch
	}

	if err := dest.Commit(); err != nil {
		s.emit(event.Error(event.ErrIO, err))
		return fmt.Errorf("transfer: commit file: %w", err)
	}

	if err := s.sendDone(); err != nil {
		return err
	}

	return nil
}
