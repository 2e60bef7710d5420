package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/p2psh/ticket"
)

func TestFakeNetworkDialAccept(t *testing.T) {
	net := NewFakeNetwork()
	ctx := context.Background()

	acceptor, err := net.Bind(ctx, []string{ALPNNormal})
	require.NoError(t, err)
	defer acceptor.Close()

	addr, err := acceptor.SelfAddress(ctx)
	require.NoError(t, err)

	dialer, err := net.Bind(ctx, []string{ALPNNormal})
	require.NoError(t, err)
	defer dialer.Close()

	acceptDone := make(chan Connection, 1)
	go func() {
		conn, err := acceptor.Accept(ctx, ALPNNormal)
		require.NoError(t, err)
		acceptDone <- conn
	}()

	dialConn, err := dialer.Dial(ctx, addr, ALPNNormal)
	require.NoError(t, err)

	var acceptConn Connection
	select {
	case acceptConn = <-acceptDone:
	case <-time.After(time.Second):
		t.Fatal("accept did not complete in time")
	}

	dialStream, err := dialConn.OpenStream(ctx)
	require.NoError(t, err)
	acceptStream, err := acceptConn.AcceptStream(ctx)
	require.NoError(t, err)

	go dialStream.Writer.Write([]byte("hello"))
	buf := make([]byte, 5)
	n, err := acceptStream.Reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	assert.Equal(t, PathDirect, dialConn.RemoteInfo().Kind)
}

func TestFakeNetworkDialWithNoListenerFails(t *testing.T) {
	net := NewFakeNetwork()
	ctx := context.Background()

	dialer, err := net.Bind(ctx, nil)
	require.NoError(t, err)
	defer dialer.Close()

	_, err = dialer.Dial(ctx, ticket.NodeAddress{NodeID: []byte("fake:999")}, ALPNNormal)
	assert.Error(t, err)
}
