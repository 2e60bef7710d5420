package overlay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/p2psh/ticket"
)

// FakeNetwork is an in-process Overlay implementation for tests: Bind
// returns an Endpoint addressed by an incrementing counter, and Dial
// delivers directly to the matching Accept call over a net.Pipe. No
// relay, no NAT traversal, no ALPN enforcement — just enough to drive
// the transfer state machine end to end without real sockets.
type FakeNetwork struct {
	mu        sync.Mutex
	listeners map[string]chan net.Conn
	counter   uint64
}

// NewFakeNetwork creates an empty fake network. Each test should use its
// own instance so addresses never collide across tests.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{listeners: make(map[string]chan net.Conn)}
}

// Bind registers a new fake endpoint and returns it. alpns is accepted
// for interface symmetry and otherwise ignored.
func (n *FakeNetwork) Bind(ctx context.Context, alpns []string) (Endpoint, error) {
	id := atomic.AddUint64(&n.counter, 1)
	addr := fmt.Sprintf("fake:%d", id)

	ch := make(chan net.Conn, 1)
	n.mu.Lock()
	n.listeners[addr] = ch
	n.mu.Unlock()

	return &fakeEndpoint{net: n, addr: addr, acceptCh: ch}, nil
}

type fakeEndpoint struct {
	net      *FakeNetwork
	addr     string
	acceptCh chan net.Conn
}

// SelfAddress reports a RelayURL (rather than a DirectAddresses entry) so
// the address survives ticket.Serialize/Deserialize's usefulness
// filtering, which only applies to direct addresses: fake addresses look
// nothing like real IP:port pairs.
func (e *fakeEndpoint) SelfAddress(ctx context.Context) (ticket.NodeAddress, error) {
	return ticket.NodeAddress{
		NodeID:   []byte(e.addr),
		RelayURL: "fake-relay://" + e.addr,
	}, nil
}

func (e *fakeEndpoint) Dial(ctx context.Context, addr ticket.NodeAddress, alpn string) (Connection, error) {
	target := string(addr.NodeID)

	e.net.mu.Lock()
	ch, ok := e.net.listeners[target]
	e.net.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("overlay: fake: no listener bound at %q", target)
	}

	local, remote := net.Pipe()
	select {
	case ch <- remote:
	case <-ctx.Done():
		local.Close()
		remote.Close()
		return nil, ctx.Err()
	}

	return &fakeConnection{conn: local}, nil
}

func (e *fakeEndpoint) Accept(ctx context.Context, alpn string) (Connection, error) {
	select {
	case conn := <-e.acceptCh:
		return &fakeConnection{conn: conn}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *fakeEndpoint) Close() error {
	e.net.mu.Lock()
	delete(e.net.listeners, e.addr)
	e.net.mu.Unlock()
	return nil
}

type fakeConnection struct {
	conn net.Conn
}

func (c *fakeConnection) OpenStream(ctx context.Context) (Stream, error) {
	return Stream{Reader: c.conn, Writer: c.conn}, nil
}

func (c *fakeConnection) AcceptStream(ctx context.Context) (Stream, error) {
	return c.OpenStream(ctx)
}

func (c *fakeConnection) RemoteInfo() PathInfo {
	return PathInfo{Kind: PathDirect}
}

func (c *fakeConnection) WatchPathType(ctx context.Context) <-chan PathInfo {
	ch := make(chan PathInfo, 1)
	ch <- c.RemoteInfo()
	return ch
}

func (c *fakeConnection) FinishWrite() error {
	return nil
}

func (c *fakeConnection) Close(code uint64, reason string) error {
	return c.conn.Close()
}
