// Package transfer drives one peer-to-peer file transfer session from
// handshake through completion: HEADER -> ACK -> DATA -> TAIL_ACK -> DONE,
// over any overlay.Connection. It never imports a concrete overlay
// implementation, only the overlay package's capability interfaces, so
// the same state machine runs over a real NAT-traversing connection or
// an in-memory test fake.
package transfer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/p2psh/event"
	"github.com/opd-ai/p2psh/noise"
	"github.com/opd-ai/p2psh/overlay"
	"github.com/opd-ai/p2psh/ticket"
)

// SendWait publishes a ticket for filePath and waits for one peer to
// connect and download it. The listener is always the Noise responder;
// because the listener is the uploader here, it advertises ALPNNormal.
// The file is hashed before the ticket is published.
func SendWait(ctx context.Context, ep overlay.Endpoint, filePath string, cfg Config) error {
	fh, err := prepareUpload(cfg, filePath)
	if err != nil {
		return err
	}
	return listen(ctx, ep, cfg, overlay.ALPNNormal, cfg.Sink != nil, func(sess *session) error {
		return sess.upload(fh, filePath)
	})
}

// SendToTarget dials addr to deliver filePath. The connector is always
// the Noise initiator; because the connector is the uploader here, it
// advertises ALPNReverse so the listener on the other end knows to
// receive rather than send. The file is hashed before the dial is attempted.
func SendToTarget(ctx context.Context, ep overlay.Endpoint, filePath string, addr ticket.NodeAddress, cfg Config) error {
	fh, err := prepareUpload(cfg, filePath)
	if err != nil {
		return err
	}
	return dial(ctx, ep, cfg, addr, overlay.ALPNReverse, cfg.Sink != nil, func(sess *session) error {
		return sess.upload(fh, filePath)
	})
}

// ReceiveTarget dials addr to download a file. The connector is the
// downloader here, so it advertises ALPNNormal, matching a listener
// started with SendWait.
func ReceiveTarget(ctx context.Context, ep overlay.Endpoint, outputDir string, addr ticket.NodeAddress, cfg Config) error {
	return dial(ctx, ep, cfg, addr, overlay.ALPNNormal, false, func(sess *session) error {
		return sess.download(outputDir)
	})
}

// ReceiveListen publishes a ticket and waits for one peer to connect and
// upload a file to outputDir. The listener is the downloader here, so it
// advertises ALPNReverse, matching a connector started with SendToTarget.
func ReceiveListen(ctx context.Context, ep overlay.Endpoint, outputDir string, cfg Config) error {
	return listen(ctx, ep, cfg, overlay.ALPNReverse, false, func(sess *session) error {
		return sess.download(outputDir)
	})
}

// listen publishes a ticket over ep, accepts one connection advertising
// alpn, completes the responder side of the handshake, and runs fn.
// minimizeTicket requests the advertised-ticket minimization heuristic:
// when a foreign embedder is attached and a relay is available, direct
// addresses are omitted from the published ticket to favor the more
// stable relay path on unreliable mobile radios.
func listen(ctx context.Context, ep overlay.Endpoint, cfg Config, alpn string, minimizeTicket bool, fn func(*session) error) error {
	cfg.emit(event.Status("setting up secure connection"))

	addr, err := ep.SelfAddress(ctx)
	if err != nil {
		cfg.emit(event.Error(event.ErrEndpointBindFailed, err))
		return fmt.Errorf("transfer: self address: %w", err)
	}

	ticketAddr := addr
	if minimizeTicket && addr.RelayURL != "" {
		ticketAddr.DirectAddresses = nil
		cfg.emit(event.Status("mobile stability mode: advertising relay-only ticket"))
	}

	ticketStr, err := ticket.Serialize(ticketAddr)
	if err != nil {
		cfg.emit(event.Error(event.ErrEndpointBindFailed, err))
		return fmt.Errorf("transfer: serialize ticket: %w", err)
	}
	cfg.emit(event.Ticket(ticketStr))
	cfg.emit(event.QRPayload(ticketStr))

	cfg.emit(event.Status("waiting for peer to connect"))

	conn, err := ep.Accept(ctx, alpn)
	if err != nil {
		cfg.emit(event.Error(event.ErrAcceptFailed, err))
		return fmt.Errorf("transfer: accept: %w", err)
	}
	defer conn.Close(0, "session complete")

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		cfg.emit(event.Error(event.ErrAcceptFailed, err))
		return fmt.Errorf("transfer: accept stream: %w", err)
	}

	return runSession(ctx, cfg, conn, stream, noise.Responder, fn)
}

// dial connects to addr advertising alpn, completes the initiator side of
// the handshake, and runs fn. preferRelay requests the reverse-mode relay
// preference heuristic: when a foreign embedder is attached and addr
// carries a relay URL, a relay-only dial is tried first, falling back to
// the full address list on failure.
func dial(ctx context.Context, ep overlay.Endpoint, cfg Config, addr ticket.NodeAddress, alpn string, preferRelay bool, fn func(*session) error) error {
	cfg.emit(event.Status("connecting to peer"))

	conn, err := dialPreferringRelay(ctx, ep, cfg, addr, alpn, preferRelay)
	if err != nil {
		cfg.emit(event.Error(event.ErrDialFailed, err))
		return fmt.Errorf("transfer: dial: %w", err)
	}
	defer conn.Close(0, "session complete")

	stream, err := conn.OpenStream(ctx)
	if err != nil {
		cfg.emit(event.Error(event.ErrDialFailed, err))
		return fmt.Errorf("transfer: open stream: %w", err)
	}

	return runSession(ctx, cfg, conn, stream, noise.Initiator, fn)
}

// dialPreferringRelay implements the reverse-mode relay preference: when
// preferRelay is set and addr carries a relay URL, it tries a relay-only
// dial first since mobile radios sometimes fail to upgrade a hole-punched
// path reliably, falling back to the full address list on failure. This is
// purely a dial-ordering heuristic; it changes no wire format.
func dialPreferringRelay(ctx context.Context, ep overlay.Endpoint, cfg Config, addr ticket.NodeAddress, alpn string, preferRelay bool) (overlay.Connection, error) {
	if preferRelay && addr.RelayURL != "" {
		relayOnly := addr
		relayOnly.DirectAddresses = nil

		cfg.emit(event.Status("trying relay-preferred connect (mobile stability mode)"))
		if conn, err := ep.Dial(ctx, relayOnly, alpn); err == nil {
			return conn, nil
		} else {
			logrus.WithFields(logrus.Fields{
				"function": "dialPreferringRelay",
				"error":    err,
			}).Warn("relay-preferred connect failed, falling back to full address list")
			cfg.emit(event.Status("relay-preferred connect failed, falling back"))
		}
	}

	return ep.Dial(ctx, addr, alpn)
}

// runSession performs the handshake and path reporting common to both
// directions before handing off to the role-specific phase logic in fn. A
// background task watches for path-type changes (e.g. a relay connection
// upgrading to direct) for the life of the session; any failure here, or
// later in fn, cancels that watcher through ctx.
func runSession(ctx context.Context, cfg Config, conn overlay.Connection, stream overlay.Stream, role noise.Role, fn func(*session) error) error {
	if err := checkCancel(ctx); err != nil {
		return err
	}

	ch, transcriptHash, err := runHandshake(role, stream)
	if err != nil {
		cfg.emit(event.Error(event.ErrHandshakeFailed, err))
		return fmt.Errorf("transfer: handshake: %w", err)
	}

	if err := emitVerificationCode(cfg, transcriptHash); err != nil {
		logrus.WithFields(logrus.Fields{"function": "runSession", "error": err}).Warn("could not derive verification code")
	}
	cfg.emit(event.Status("encrypted channel established"))

	path := conn.RemoteInfo()
	cfg.emit(event.ConnectionPath(toEventPath(path.Kind), path.LatencyMs))

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go watchPathType(watchCtx, cfg, conn)

	sess := &session{cfg: cfg, conn: conn, stream: stream, ch: ch}
	return fn(sess)
}

// watchPathType relays path-type updates for the lifetime of one session.
// It returns as soon as ctx is cancelled (by runSession's deferred cancel,
// on success or failure alike) or the connection's update channel closes.
func watchPathType(ctx context.Context, cfg Config, conn overlay.Connection) {
	updates := conn.WatchPathType(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case info, ok := <-updates:
			if !ok {
				return
			}
			cfg.emit(event.ConnectionPath(toEventPath(info.Kind), info.LatencyMs))
		}
	}
}

func toEventPath(k overlay.PathType) event.PathKind {
	switch k {
	case overlay.PathDirect:
		return event.PathDirect
	case overlay.PathRelay:
		return event.PathRelay
	case overlay.PathMixed:
		return event.PathMixed
	default:
		return event.PathNone
	}
}
