package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNNHandshakeEstablishesMatchingChannels(t *testing.T) {
	initiator, err := NewHandshake(Initiator)
	require.NoError(t, err)
	responder, err := NewHandshake(Responder)
	require.NoError(t, err)

	msg1, err := initiator.WriteInitiatorMessage()
	require.NoError(t, err)

	msg2, err := responder.ReadInitiatorMessage(msg1)
	require.NoError(t, err)
	assert.True(t, responder.IsComplete())

	require.NoError(t, initiator.ReadResponderMessage(msg2))
	assert.True(t, initiator.IsComplete())

	initiatorHash, err := initiator.ChannelHash()
	require.NoError(t, err)
	responderHash, err := responder.ChannelHash()
	require.NoError(t, err)
	assert.Equal(t, initiatorHash, responderHash)

	initChannel, err := initiator.IntoChannel()
	require.NoError(t, err)
	respChannel, err := responder.IntoChannel()
	require.NoError(t, err)

	ciphertext, err := initChannel.Seal([]byte("hello responder"))
	require.NoError(t, err)

	plaintext, err := respChannel.Open(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello responder", string(plaintext))

	reply, err := respChannel.Seal([]byte("hello initiator"))
	require.NoError(t, err)
	got, err := initChannel.Open(reply)
	require.NoError(t, err)
	assert.Equal(t, "hello initiator", string(got))
}

func TestHandshakeRejectsOutOfOrderOperations(t *testing.T) {
	responder, err := NewHandshake(Responder)
	require.NoError(t, err)

	_, err = responder.WriteInitiatorMessage()
	assert.Error(t, err)

	initiator, err := NewHandshake(Initiator)
	require.NoError(t, err)

	_, err = initiator.ReadInitiatorMessage(nil)
	assert.Error(t, err)
}

func TestIntoChannelBeforeCompleteFails(t *testing.T) {
	h, err := NewHandshake(Initiator)
	require.NoError(t, err)

	_, err = h.IntoChannel()
	assert.ErrorIs(t, err, ErrHandshakeNotComplete)
}

func TestVerificationCodeMatchesOnBothSides(t *testing.T) {
	initiator, err := NewHandshake(Initiator)
	require.NoError(t, err)
	responder, err := NewHandshake(Responder)
	require.NoError(t, err)

	msg1, err := initiator.WriteInitiatorMessage()
	require.NoError(t, err)
	msg2, err := responder.ReadInitiatorMessage(msg1)
	require.NoError(t, err)
	require.NoError(t, initiator.ReadResponderMessage(msg2))

	hashA, err := initiator.ChannelHash()
	require.NoError(t, err)
	hashB, err := responder.ChannelHash()
	require.NoError(t, err)

	codeA, err := VerificationCode(hashA)
	require.NoError(t, err)
	codeB, err := VerificationCode(hashB)
	require.NoError(t, err)

	assert.Equal(t, codeA, codeB)
	assert.Len(t, codeA, 9) // 4 hex + '-' + 4 hex
}

func TestVerificationCodeRejectsShortHash(t *testing.T) {
	_, err := VerificationCode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrTranscriptTooShort)
}
