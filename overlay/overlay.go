// Package overlay defines the capability set the transfer state machine
// needs from a connection-oriented NAT-traversing transport, and ships
// one concrete adapter, IceOverlay, built on pion/ice with a WebSocket
// relay fallback.
//
// The state machine in package transfer depends only on the interfaces
// in this file — never on IceOverlay directly — so any holepunching
// library with ordered, reliable, bidirectional byte streams can stand
// in, including the in-memory fakes used by the test suite.
package overlay

import (
	"context"
	"io"
	"time"

	"github.com/opd-ai/p2psh/ticket"
)

// ALPN tags select which role the listener assumes.
const (
	// ALPNNormal is used when the acceptor is the sender.
	ALPNNormal = "p2p-share/1"
	// ALPNReverse is used when the acceptor is the receiver.
	ALPNReverse = "p2p-share/1-reverse"
)

// PathType classifies the negotiated connection path.
type PathType uint8

const (
	PathNone PathType = iota
	PathDirect
	PathRelay
	PathMixed
)

// PathInfo carries the path type and, when known, an observed latency.
type PathInfo struct {
	Kind      PathType
	LatencyMs *int64
}

// Stream is the bidirectional byte-stream pair a Connection hands back.
// Implementations may return the same value for both halves when the
// underlying transport is naturally full-duplex (as pion/ice connections
// are).
type Stream struct {
	Reader io.Reader
	Writer io.Writer
}

// Endpoint is a bound, addressable overlay node able to dial or accept
// one connection at a time (the core never runs concurrent sessions).
type Endpoint interface {
	// SelfAddress awaits readiness of at least one of relay binding or
	// local direct address(es) and returns the address to publish in a
	// ticket. A 10s timeout on relay binding is tolerated; the returned
	// address then carries only direct addresses.
	SelfAddress(ctx context.Context) (ticket.NodeAddress, error)

	// Dial connects to addr advertising alpn, becoming the Noise initiator.
	Dial(ctx context.Context, addr ticket.NodeAddress, alpn string) (Connection, error)

	// Accept waits for one inbound connection on the given alpn, becoming
	// the Noise responder.
	Accept(ctx context.Context, alpn string) (Connection, error)

	// Close releases every socket the endpoint owns.
	Close() error
}

// Connection is one established peer-to-peer session.
type Connection interface {
	// OpenStream opens the bidirectional application byte-stream (dialer side).
	OpenStream(ctx context.Context) (Stream, error)

	// AcceptStream accepts the bidirectional application byte-stream (acceptor side).
	AcceptStream(ctx context.Context) (Stream, error)

	// RemoteInfo reports the currently observed path type and latency.
	RemoteInfo() PathInfo

	// WatchPathType returns a channel of path-type updates. The
	// implementations in this package never close it; consumers stop
	// watching by cancelling ctx.
	WatchPathType(ctx context.Context) <-chan PathInfo

	// FinishWrite signals no more application data will be written.
	FinishWrite() error

	// Close closes the connection with an application-level reason code.
	Close(code uint64, reason string) error
}

// Bind creates an endpoint advertising one or more ALPN tags. It is a
// free function rather than a method because constructing an Endpoint
// requires transport-specific configuration (STUN/TURN servers, relay
// URL) that differs per concrete implementation; see NewIceOverlay.
type BindFunc func(ctx context.Context, alpns []string) (Endpoint, error)

// DefaultRelayTimeout is the tolerated wait for relay binding readiness
// before SelfAddress proceeds direct-only with a warning.
const DefaultRelayTimeout = 10 * time.Second
