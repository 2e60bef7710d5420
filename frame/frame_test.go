package frame

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, frame")

	require.NoError(t, SendFrame(&buf, payload))

	got, err := RecvFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRecvFrameEmptyIsLegal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendFrame(&buf, nil))

	got, err := RecvFrame(&buf)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Len(t, got, 0)
}

func TestSendFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxPayload+1)
	err := SendFrame(&buf, payload)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestRecvFrameRejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := RecvFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestOverNetPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = SendFrame(a, []byte("ping"))
	}()

	got, err := RecvFrame(b)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestMultipleFramesInOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendFrame(&buf, []byte("one")))
	require.NoError(t, SendFrame(&buf, []byte("two")))
	require.NoError(t, SendFrame(&buf, []byte("three")))

	for _, want := range []string{"one", "two", "three"} {
		got, err := RecvFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}
