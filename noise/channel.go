package noise

import (
	"fmt"

	flynnnoise "github.com/flynn/noise"
)

// Channel wraps the post-handshake Noise transport cipher states. All
// session traffic after the handshake flows through Seal/Open; the
// resulting ciphertexts are framed on the wire by package frame.
type Channel struct {
	send *flynnnoise.CipherState
	recv *flynnnoise.CipherState
}

// Seal encrypts plaintext into a ciphertext ready to be sent as one
// frame. The AEAD tag is appended by the underlying cipher.
func (c *Channel) Seal(plaintext []byte) ([]byte, error) {
	ciphertext, err := c.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal application message: %w", err)
	}
	return ciphertext, nil
}

// Open decrypts a ciphertext received as one frame back into plaintext.
func (c *Channel) Open(ciphertext []byte) ([]byte, error) {
	plaintext, err := c.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("open application message: %w", err)
	}
	return plaintext, nil
}
