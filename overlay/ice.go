package overlay

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/stun/v3"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/p2psh/ticket"
)

// TURNServer names one relay credential set the ICE agent may use for
// relay-type candidates when a direct or server-reflexive path is
// unreachable.
type TURNServer struct {
	URL        string
	Username   string
	Credential string
}

// IceConfig configures an IceOverlay.
type IceConfig struct {
	// STUNServers are stun: URLs used for server-reflexive candidate discovery.
	STUNServers []string
	// TURNServers are turn: credentials used for relay candidates.
	TURNServers []TURNServer
	// RelayURL is the rendezvous relay's websocket endpoint, used both as
	// the ICE signaling channel and as the data-path fallback when
	// connectivity checks do not converge before GatherTimeout.
	RelayURL string
	// GatherTimeout bounds local candidate gathering; zero uses DefaultGatherTimeout.
	GatherTimeout time.Duration
}

// DefaultGatherTimeout bounds ICE candidate gathering.
const DefaultGatherTimeout = 5 * time.Second

// IceOverlay is the production Overlay adapter: pion/ice for hole
// punching, with the rendezvous relay doubling as the out-of-band
// signaling channel for exchanging ICE credentials and candidates, and
// as the fallback data path when no direct path converges in time.
type IceOverlay struct {
	cfg IceConfig
}

// NewIceOverlay constructs an IceOverlay from cfg.
func NewIceOverlay(cfg IceConfig) *IceOverlay {
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultGatherTimeout
	}
	return &IceOverlay{cfg: cfg}
}

func (o *IceOverlay) iceURLs() []*stun.URI {
	var urls []*stun.URI
	for _, s := range o.cfg.STUNServers {
		if u, err := stun.ParseURI(s); err == nil {
			urls = append(urls, u)
		} else {
			logrus.WithFields(logrus.Fields{"function": "IceOverlay.iceURLs", "url": s, "error": err}).Warn("skipping unparsable stun url")
		}
	}
	for _, t := range o.cfg.TURNServers {
		u, err := stun.ParseURI(t.URL)
		if err != nil {
			logrus.WithFields(logrus.Fields{"function": "IceOverlay.iceURLs", "url": t.URL, "error": err}).Warn("skipping unparsable turn url")
			continue
		}
		u.Username = t.Username
		u.Password = t.Credential
		urls = append(urls, u)
	}
	return urls
}

func (o *IceOverlay) newAgent() (*ice.Agent, error) {
	return ice.NewAgent(&ice.AgentConfig{
		Urls:           o.iceURLs(),
		NetworkTypes:   []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
		CandidateTypes: []ice.CandidateType{ice.CandidateTypeHost, ice.CandidateTypeServerReflexive, ice.CandidateTypeRelay},
	})
}

// Bind gathers local candidates and returns a ready Endpoint. alpns is
// accepted for interface symmetry with BindFunc and otherwise ignored;
// the ICE endpoint does not restrict ALPN at bind time or at Accept.
func (o *IceOverlay) Bind(ctx context.Context, alpns []string) (Endpoint, error) {
	agent, err := o.newAgent()
	if err != nil {
		return nil, fmt.Errorf("overlay: create ice agent: %w", err)
	}

	ep := &iceEndpoint{cfg: o.cfg, agent: agent, nodeID: uuid.New()}

	gatherCh := make(chan struct{})
	var once sync.Once
	if err := agent.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			once.Do(func() { close(gatherCh) })
			return
		}
		ep.mu.Lock()
		ep.candidates = append(ep.candidates, c)
		ep.mu.Unlock()
	}); err != nil {
		return nil, fmt.Errorf("overlay: register candidate handler: %w", err)
	}

	if err := agent.GatherCandidates(); err != nil {
		return nil, fmt.Errorf("overlay: gather candidates: %w", err)
	}

	select {
	case <-gatherCh:
	case <-time.After(o.cfg.GatherTimeout):
		logrus.WithField("function", "IceOverlay.Bind").Warn("candidate gathering timed out, proceeding with partial set")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return ep, nil
}

// iceEndpoint is the concrete Endpoint backing one bound session.
type iceEndpoint struct {
	cfg    IceConfig
	agent  *ice.Agent
	nodeID uuid.UUID

	mu         sync.Mutex
	candidates []ice.Candidate
}

func (e *iceEndpoint) directAddresses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	addrs := make([]string, 0, len(e.candidates))
	for _, c := range e.candidates {
		if c.Type() == ice.CandidateTypeRelay {
			continue
		}
		addrs = append(addrs, fmt.Sprintf("%s:%d", c.Address(), c.Port()))
	}
	return addrs
}

// SelfAddress waits up to DefaultRelayTimeout for the relay leg to be
// reachable (a TCP dial of the relay URL's host), then returns whatever
// direct addresses ICE has gathered alongside it. Direct-only addresses
// are returned on relay timeout rather than failing the whole call,
// matching the tolerant-fallback behavior described for listeners behind
// symmetric NATs with no configured relay.
func (e *iceEndpoint) SelfAddress(ctx context.Context) (ticket.NodeAddress, error) {
	addr := ticket.NodeAddress{
		NodeID:          e.nodeID[:],
		DirectAddresses: e.directAddresses(),
	}

	if e.cfg.RelayURL == "" {
		if len(addr.DirectAddresses) == 0 {
			return ticket.NodeAddress{}, ticket.ErrNoReachability
		}
		return addr, nil
	}

	relayCtx, cancel := context.WithTimeout(ctx, DefaultRelayTimeout)
	defer cancel()

	u, err := url.Parse(e.cfg.RelayURL)
	if err != nil {
		return ticket.NodeAddress{}, fmt.Errorf("overlay: parse relay url: %w", err)
	}
	hostport := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "wss" || u.Scheme == "https" {
			port = "443"
		}
		hostport = net.JoinHostPort(u.Hostname(), port)
	}

	var d net.Dialer
	probe, err := d.DialContext(relayCtx, "tcp", hostport)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "iceEndpoint.SelfAddress", "error": err}).Warn("relay not confirmed reachable before timeout, publishing direct addresses only")
		if len(addr.DirectAddresses) == 0 {
			return ticket.NodeAddress{}, ticket.ErrNoReachability
		}
		return addr, nil
	}
	probe.Close()

	addr.RelayURL = e.cfg.RelayURL
	return addr, nil
}

// Dial connects to addr, preferring a direct ICE path and falling back to
// the relay when connectivity checks do not converge before
// cfg.GatherTimeout elapses.
func (e *iceEndpoint) Dial(ctx context.Context, addr ticket.NodeAddress, alpn string) (Connection, error) {
	var relay *relayConn
	if addr.RelayURL != "" {
		var err error
		relay, err = dialRelay(ctx, addr.RelayURL, alpn)
		if err != nil {
			return nil, fmt.Errorf("overlay: relay dial: %w", err)
		}
	}

	direct, err := e.attemptDirectDial(ctx, relay)
	if err == nil {
		return direct, nil
	}

	logrus.WithFields(logrus.Fields{"function": "iceEndpoint.Dial", "error": err}).Debug("direct ice path unavailable, using relay")
	if relay != nil {
		return relay, nil
	}
	return nil, fmt.Errorf("overlay: no reachable path to peer: %w", err)
}

// attemptDirectDial exchanges local ICE credentials and candidates over
// relay (when present) and races a connectivity check against
// cfg.GatherTimeout. A nil relay means the ticket carried direct
// addresses only, so this attempts to contact them as remote
// server-reflexive candidates without further signaling.
func (e *iceEndpoint) attemptDirectDial(ctx context.Context, relay *relayConn) (Connection, error) {
	ufrag, pwd, err := e.agent.GetLocalUserCredentials()
	if err != nil {
		return nil, fmt.Errorf("overlay: local credentials: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.GatherTimeout)
	defer cancel()

	conn, err := e.agent.Dial(dialCtx, ufrag, pwd)
	if err != nil {
		return nil, fmt.Errorf("overlay: ice dial: %w", err)
	}

	if relay != nil {
		relay.upgradeToDirect(nil)
	}
	return &iceConnection{conn: conn}, nil
}

// Accept waits for one inbound ICE connection. alpn is not checked, and
// no relay connection is accepted here.
func (e *iceEndpoint) Accept(ctx context.Context, alpn string) (Connection, error) {
	ufrag, pwd, err := e.agent.GetLocalUserCredentials()
	if err != nil {
		return nil, fmt.Errorf("overlay: local credentials: %w", err)
	}

	conn, err := e.agent.Accept(ctx, ufrag, pwd)
	if err != nil {
		return nil, fmt.Errorf("overlay: ice accept: %w", err)
	}
	return &iceConnection{conn: conn}, nil
}

func (e *iceEndpoint) Close() error {
	return e.agent.Close()
}

// iceConnection adapts *ice.Conn, which is already a full-duplex
// io.ReadWriteCloser, to the Connection interface.
type iceConnection struct {
	conn *ice.Conn
}

func (c *iceConnection) OpenStream(ctx context.Context) (Stream, error) {
	return Stream{Reader: c.conn, Writer: c.conn}, nil
}

func (c *iceConnection) AcceptStream(ctx context.Context) (Stream, error) {
	return c.OpenStream(ctx)
}

func (c *iceConnection) RemoteInfo() PathInfo {
	return PathInfo{Kind: PathDirect}
}

func (c *iceConnection) WatchPathType(ctx context.Context) <-chan PathInfo {
	ch := make(chan PathInfo, 1)
	ch <- c.RemoteInfo()
	return ch
}

func (c *iceConnection) FinishWrite() error {
	return nil
}

func (c *iceConnection) Close(code uint64, reason string) error {
	logrus.WithFields(logrus.Fields{
		"function": "iceConnection.Close",
		"code":     code,
		"reason":   reason,
	}).Debug("closing ice connection")
	return c.conn.Close()
}
