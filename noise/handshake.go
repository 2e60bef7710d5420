package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	flynnnoise "github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// Role identifies which side of the handshake a Handshake instance plays.
type Role uint8

const (
	// Initiator is always the connector: the peer that dialed using a ticket.
	Initiator Role = iota
	// Responder is always the listener: the peer that published the ticket.
	Responder
)

// ErrHandshakeNotComplete indicates the cipher states or transcript hash
// were requested before the handshake finished.
var ErrHandshakeNotComplete = errors.New("noise handshake not complete")

// ErrHandshakeComplete indicates a message was written or read after the
// handshake had already finished its two messages.
var ErrHandshakeComplete = errors.New("noise handshake already complete")

var cipherSuite = flynnnoise.NewCipherSuite(flynnnoise.DH25519, flynnnoise.CipherChaChaPoly, flynnnoise.HashBLAKE2s)

// Handshake drives one side of the two-message Noise_NN exchange.
type Handshake struct {
	role     Role
	state    *flynnnoise.HandshakeState
	complete bool

	send *flynnnoise.CipherState
	recv *flynnnoise.CipherState
}

// NewHandshake creates a fresh NN handshake for the given role. NN carries
// no static keys, so no key material is required from the caller.
func NewHandshake(role Role) (*Handshake, error) {
	config := flynnnoise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     flynnnoise.HandshakeNN,
		Initiator:   role == Initiator,
	}

	state, err := flynnnoise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("create NN handshake state: %w", err)
	}

	return &Handshake{role: role, state: state}, nil
}

// WriteInitiatorMessage produces the initiator's single handshake
// message ("-> e"). Only valid for Initiator.
func (h *Handshake) WriteInitiatorMessage() ([]byte, error) {
	if h.role != Initiator {
		return nil, errors.New("only the initiator writes the first handshake message")
	}
	if h.complete {
		return nil, ErrHandshakeComplete
	}

	msg, _, _, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("write initiator handshake message: %w", err)
	}

	return msg, nil
}

// ReadInitiatorMessage consumes the initiator's message and produces the
// responder's reply ("<- e, ee"), completing the handshake for the
// responder side.
func (h *Handshake) ReadInitiatorMessage(msg []byte) ([]byte, error) {
	if h.role != Responder {
		return nil, errors.New("only the responder reads the initiator's message here")
	}
	if h.complete {
		return nil, ErrHandshakeComplete
	}

	if _, _, _, err := h.state.ReadMessage(nil, msg); err != nil {
		return nil, fmt.Errorf("read initiator handshake message: %w", err)
	}

	reply, send, recv, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("write responder handshake message: %w", err)
	}

	h.send, h.recv = send, recv
	h.complete = true

	logrus.WithFields(logrus.Fields{
		"function": "ReadInitiatorMessage",
		"role":     "responder",
	}).Debug("noise handshake complete")

	return reply, nil
}

// ReadResponderMessage consumes the responder's reply, completing the
// handshake for the initiator side.
func (h *Handshake) ReadResponderMessage(msg []byte) error {
	if h.role != Initiator {
		return errors.New("only the initiator reads the responder's reply")
	}
	if h.complete {
		return ErrHandshakeComplete
	}

	_, send, recv, err := h.state.ReadMessage(nil, msg)
	if err != nil {
		return fmt.Errorf("read responder handshake message: %w", err)
	}

	h.send, h.recv = send, recv
	h.complete = true

	logrus.WithFields(logrus.Fields{
		"function": "ReadResponderMessage",
		"role":     "initiator",
	}).Debug("noise handshake complete")

	return nil
}

// IsComplete reports whether both handshake messages have been exchanged.
func (h *Handshake) IsComplete() bool {
	return h.complete
}

// ChannelHash returns the handshake transcript hash once complete; used
// for verification-code derivation.
func (h *Handshake) ChannelHash() ([]byte, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}
	return h.state.ChannelBinding(), nil
}

// IntoChannel consumes the completed handshake and returns the
// established Channel. The handshake state cannot be reused afterward.
func (h *Handshake) IntoChannel() (*Channel, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}
	if h.send == nil || h.recv == nil {
		return nil, errors.New("handshake completed without cipher states")
	}

	return &Channel{send: h.send, recv: h.recv}, nil
}
