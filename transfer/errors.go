package transfer

import "errors"

// Sentinel errors for conditions the state machine detects itself,
// independent of the event.ErrorCode reported alongside them.
var (
	ErrReceiverRejected   = errors.New("transfer: receiver rejected the file")
	ErrChecksumMismatch   = errors.New("transfer: received data does not match the advertised checksum")
	ErrTailAckMismatch    = errors.New("transfer: unexpected tail acknowledgment from peer")
	ErrIncompleteTransfer = errors.New("transfer: connection closed before all bytes were received")
	ErrLocalFileChanged   = errors.New("transfer: local file changed size during the transfer")
	ErrPeerClosed         = errors.New("transfer: peer closed the connection unexpectedly")
)
