package overlay

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// signalEnvelope is the small JSON control message exchanged over the
// relay socket before the application stream begins: it carries the
// requested ALPN on the dialer's first message and, once a direct path
// has been independently established via IceOverlay, an upgrade notice.
type signalEnvelope struct {
	Alpn    string `json:"alpn,omitempty"`
	Upgrade bool   `json:"upgrade,omitempty"`
}

// relayConn adapts a gorilla/websocket connection to the Connection
// interface, used both as the fallback data path when ICE connectivity
// checks fail and as the out-of-band signaling channel IceOverlay uses to
// exchange ICE credentials and candidates.
type relayConn struct {
	ws *websocket.Conn

	mu   sync.Mutex
	path PathInfo

	watchOnce sync.Once
	watchCh   chan PathInfo
}

func newRelayConn(ws *websocket.Conn) *relayConn {
	return &relayConn{ws: ws, path: PathInfo{Kind: PathRelay}}
}

// dialRelay opens a websocket connection to relayURL and exchanges the
// initial signaling envelope identifying the requested ALPN.
func dialRelay(ctx context.Context, relayURL, alpn string) (*relayConn, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("overlay: parse relay url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("overlay: dial relay: %w", err)
	}

	if err := ws.WriteJSON(signalEnvelope{Alpn: alpn}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("overlay: send relay hello: %w", err)
	}

	return newRelayConn(ws), nil
}

// acceptRelay reads the dialer's initial envelope off an already-accepted
// websocket connection (performed by the rendezvous server's HTTP
// upgrade handler) and returns a relayConn bound to the requested ALPN,
// or an error if the ALPN does not match what this endpoint is
// listening for.
func acceptRelay(ws *websocket.Conn, wantAlpn string) (*relayConn, error) {
	var hello signalEnvelope
	if err := ws.ReadJSON(&hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("overlay: read relay hello: %w", err)
	}
	if hello.Alpn != wantAlpn {
		ws.Close()
		return nil, fmt.Errorf("overlay: alpn mismatch: got %q want %q", hello.Alpn, wantAlpn)
	}
	return newRelayConn(ws), nil
}

func (c *relayConn) OpenStream(ctx context.Context) (Stream, error) {
	return Stream{Reader: &wsReader{ws: c.ws}, Writer: wsWriter{c.ws}}, nil
}

func (c *relayConn) AcceptStream(ctx context.Context) (Stream, error) {
	return c.OpenStream(ctx)
}

func (c *relayConn) RemoteInfo() PathInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func (c *relayConn) WatchPathType(ctx context.Context) <-chan PathInfo {
	c.watchOnce.Do(func() {
		c.watchCh = make(chan PathInfo, 1)
		c.watchCh <- c.RemoteInfo()
	})
	return c.watchCh
}

// upgradeToDirect reports a later-established direct path on the same
// logical connection, used by IceOverlay once it promotes a relay-backed
// session to a hole-punched one.
func (c *relayConn) upgradeToDirect(latencyMs *int64) {
	c.mu.Lock()
	c.path = PathInfo{Kind: PathMixed, LatencyMs: latencyMs}
	c.mu.Unlock()

	if c.watchCh != nil {
		select {
		case c.watchCh <- c.RemoteInfo():
		default:
		}
	}
}

func (c *relayConn) FinishWrite() error {
	return c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *relayConn) Close(code uint64, reason string) error {
	logrus.WithFields(logrus.Fields{
		"function": "relayConn.Close",
		"code":     code,
		"reason":   reason,
	}).Debug("closing relay connection")
	return c.ws.Close()
}

// wsReader/wsWriter adapt the message-oriented websocket.Conn to the
// byte-stream io.Reader/io.Writer the frame package expects, buffering
// the unread rest of a message so a short read never drops data.
type wsReader struct {
	ws  *websocket.Conn
	buf []byte
}

func (r *wsReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		_, data, err := r.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

type wsWriter struct{ ws *websocket.Conn }

func (w wsWriter) Write(p []byte) (int, error) {
	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
