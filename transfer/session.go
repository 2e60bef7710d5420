package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/frame"
	"github.com/opd-ai/p2psh/noise"
	"github.com/opd-ai/p2psh/overlay"
)

// session bundles the pieces every phase after the handshake needs: the
// sealed-frame transport, the event sink, and the tunables from Config.
type session struct {
	cfg    Config
	conn   overlay.Connection
	stream overlay.Stream
	ch     *noise.Channel
}

func (s *session) emit(e event.Event) { s.cfg.emit(e) }

// sendSealed seals plaintext and writes it as one frame.
func (s *session) sendSealed(plaintext []byte) error {
	ciphertext, err := s.ch.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("transfer: seal frame: %w", err)
	}
	if err := frame.SendFrame(s.stream.Writer, ciphertext); err != nil {
		return fmt.Errorf("transfer: send frame: %w", err)
	}
	return nil
}

// recvSealed reads one frame and opens it.
func (s *session) recvSealed() ([]byte, error) {
	ciphertext, err := frame.RecvFrame(s.stream.Reader)
	if err != nil {
		return nil, fmt.Errorf("transfer: recv frame: %w", err)
	}
	plaintext, err := s.ch.Open(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("transfer: open frame: %w", err)
	}
	return plaintext, nil
}

// runHandshake drives the two-message Noise_NN exchange over stream and
// returns the established channel and transcript hash for verification
// code derivation.
func runHandshake(role noise.Role, stream overlay.Stream) (*noise.Channel, []byte, error) {
	hs, err := noise.NewHandshake(role)
	if err != nil {
		return nil, nil, fmt.Errorf("transfer: new handshake: %w", err)
	}

	switch role {
	case noise.Initiator:
		msg1, err := hs.WriteInitiatorMessage()
		if err != nil {
			return nil, nil, err
		}
		if err := frame.SendFrame(stream.Writer, msg1); err != nil {
			return nil, nil, fmt.Errorf("transfer: send handshake message 1: %w", err)
		}

		msg2, err := frame.RecvFrame(stream.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("transfer: recv handshake message 2: %w", err)
		}
		if err := hs.ReadResponderMessage(msg2); err != nil {
			return nil, nil, err
		}

	case noise.Responder:
		msg1, err := frame.RecvFrame(stream.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("transfer: recv handshake message 1: %w", err)
		}
		msg2, err := hs.ReadInitiatorMessage(msg1)
		if err != nil {
			return nil, nil, err
		}
		if err := frame.SendFrame(stream.Writer, msg2); err != nil {
			return nil, nil, fmt.Errorf("transfer: send handshake message 2: %w", err)
		}
	}

	hash, err := hs.ChannelHash()
	if err != nil {
		return nil, nil, err
	}
	ch, err := hs.IntoChannel()
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "runHandshake",
		"role":     role,
	}).Info("noise handshake established")

	return ch, hash, nil
}

// emitVerificationCode derives and reports the short code both peers
// should compare out of band to rule out a relay-level man in the middle.
func emitVerificationCode(cfg Config, transcriptHash []byte) error {
	code, err := noise.VerificationCode(transcriptHash)
	if err != nil {
		return fmt.Errorf("transfer: verification code: %w", err)
	}
	cfg.emit(event.HandshakeCode(code))
	return nil
}

// sendOK sends the literal ACK the receiver emits once it has decoded the
// header and prepared a destination for the incoming file.
func (s *session) sendOK() error {
	return s.sendSealed([]byte("OK\n"))
}

// recvAck reads the uploader's expected "OK\n" acknowledgment. Anything
// else is a rejection, matching the original's ack_str.trim() != "OK" check.
func (s *session) recvAck() error {
	msg, err := s.recvSealed()
	if err != nil {
		return fmt.Errorf("transfer: recv ack: %w", err)
	}
	if strings.TrimSpace(string(msg)) != "OK" {
		return ErrReceiverRejected
	}
	return nil
}

// sendDone sends the literal tail acknowledgment the receiver emits once
// the file has been verified and committed to its final path.
func (s *session) sendDone() error {
	return s.sendSealed([]byte("DONE\n"))
}

// recvDone reads the receiver's expected "DONE\n" tail acknowledgment.
func (s *session) recvDone() error {
	msg, err := s.recvSealed()
	if err != nil {
		return fmt.Errorf("transfer: recv done: %w", err)
	}
	if strings.TrimSpace(string(msg)) != "DONE" {
		return ErrTailAckMismatch
	}
	return nil
}

// checkCancel returns ctx.Err() if ctx has already been cancelled,
// letting long-running phases bail out between blocking I/O calls.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
