package noise

import (
	"encoding/hex"
	"errors"
)

// VerificationCode derives the short human-comparison code from a
// completed handshake's transcript hash: the first four bytes, rendered
// as two hyphenated 2-byte hex groups (8 hex characters total). Both
// peers compute this from the same transcript hash and so always agree,
// without the core ever deciding anything based on the value itself.
func VerificationCode(transcriptHash []byte) (string, error) {
	if len(transcriptHash) < 4 {
		return "", ErrTranscriptTooShort
	}

	first := hex.EncodeToString(transcriptHash[0:2])
	second := hex.EncodeToString(transcriptHash[2:4])

	return first + "-" + second, nil
}

// ErrTranscriptTooShort indicates VerificationCode was called with a
// handshake transcript hash shorter than the 4 bytes it needs.
var ErrTranscriptTooShort = errors.New("handshake transcript hash shorter than 4 bytes")
