// Package noise implements the p2psh secure channel: a two-message
// Noise_NN_25519_ChaChaPoly_BLAKE2s handshake followed by an AEAD framed
// transport, plus the short human verification code derived from the
// handshake transcript.
//
// # Pattern
//
// NN uses only ephemeral keys on both sides — no static authentication,
// appropriate for a session whose only out-of-band secret is the
// rendezvous ticket itself, not a pre-shared identity:
//
//	initiator -> responder : e
//	initiator <- responder : e, ee
//
// The connector (ticket consumer) is always the Noise initiator; the
// listener (ticket publisher) is always the responder.
//
// # Verification code
//
// Once both sides complete the handshake, VerificationCode derives an
// 8-hex-character, hyphenated code from the handshake transcript hash.
// Both peers display it; a match gives the two humans confidence they
// are not the targets of an active machine-in-the-middle substitution
// during rendezvous.
//
// # Transport
//
// After handshake completion, Channel.Seal/Open wrap plaintext
// application messages (the file header, OK/DONE acks, data chunks) as
// Noise transport ciphertexts. Every ciphertext travels as exactly one
// frame (see package frame). Re-keying is not performed; p2psh sessions
// are short-lived single-file transfers, well under the practical
// message-count limits of ChaCha20-Poly1305.
package noise
