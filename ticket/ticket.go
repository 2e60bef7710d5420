// Package ticket implements the p2psh rendezvous ticket codec.
//
// A ticket is an opaque printable string that carries enough reachability
// information for one peer to dial another: a rendezvous node identifier,
// an optional relay URL, and a set of directly-dialable addresses. Tickets
// are the only out-of-band information exchanged between peers.
package ticket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Prefix is the canonical, lowercase ticket prefix.
const Prefix = "p2psh:"

// ErrNotATicket indicates the input does not carry the p2psh: prefix.
var ErrNotATicket = errors.New("not a p2psh ticket")

// ErrInvalidTicket indicates the ticket failed to decode or violates an invariant.
var ErrInvalidTicket = errors.New("invalid p2psh ticket")

// ErrNoReachability indicates a decoded ticket carries neither a relay URL
// nor any useful direct address.
var ErrNoReachability = errors.New("ticket has no relay or usable direct addresses")

// NodeAddress describes how to reach a peer through the Overlay: a
// rendezvous identifier plus optional relay and direct reachability hints.
// Created by the Overlay at bind time, copied into a ticket by the
// publishing side (direct addresses filtered through Useful), and discarded by the dialing side once the dial
// succeeds.
type NodeAddress struct {
	NodeID          []byte   `json:"node_id"`
	RelayURL        string   `json:"relay_url,omitempty"`
	DirectAddresses []string `json:"direct_addresses,omitempty"`
}

// wireAddress is the JSON shape carried inside the base64url payload.
// NodeID is base64-std encoded as a string because raw bytes don't survive
// JSON directly.
type wireAddress struct {
	NodeID          string   `json:"node_id"`
	RelayURL        string   `json:"relay_url,omitempty"`
	DirectAddresses []string `json:"direct_addresses,omitempty"`
}

// Serialize encodes a NodeAddress into a printable ticket string. Direct
// addresses are filtered through Useful before encoding; relay_url and
// node_id are preserved as given.
func Serialize(addr NodeAddress) (string, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Serialize",
		"package":  "ticket",
	})

	filtered := filterUseful(addr.DirectAddresses)

	wire := wireAddress{
		NodeID:          base64.StdEncoding.EncodeToString(addr.NodeID),
		RelayURL:        addr.RelayURL,
		DirectAddresses: filtered,
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		logger.WithError(err).Error("failed to marshal ticket JSON")
		return "", fmt.Errorf("marshal ticket: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	out := Prefix + encoded

	logger.WithFields(logrus.Fields{
		"direct_addresses_kept": len(filtered),
		"has_relay":             addr.RelayURL != "",
	}).Debug("ticket serialized")

	return out, nil
}

// Deserialize decodes a ticket string into a NodeAddress. It is strict
// about the prefix and rejects tickets whose reachability hints are empty
// after filtering. Error messages are written to be shown to a human who
// may have mistyped or truncated the ticket while copy-pasting.
func Deserialize(s string) (NodeAddress, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Deserialize",
		"package":  "ticket",
	})

	if !IsTicket(s) {
		return NodeAddress{}, fmt.Errorf("%w: ticket must start with %q", ErrNotATicket, Prefix)
	}

	encoded := s[len(Prefix):]
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		logger.WithError(err).Warn("ticket failed base64 decode; possibly truncated during copy-paste")
		return NodeAddress{}, fmt.Errorf("%w: could not decode ticket body, it may have been truncated when copied: %v", ErrInvalidTicket, err)
	}

	var wire wireAddress
	if err := json.Unmarshal(raw, &wire); err != nil {
		logger.WithError(err).Warn("ticket body is not valid JSON")
		return NodeAddress{}, fmt.Errorf("%w: ticket body is malformed, it may have been truncated when copied: %v", ErrInvalidTicket, err)
	}

	nodeID, err := base64.StdEncoding.DecodeString(wire.NodeID)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: ticket node id is malformed: %v", ErrInvalidTicket, err)
	}

	filtered := filterUseful(wire.DirectAddresses)

	if wire.RelayURL == "" && len(filtered) == 0 {
		logger.Warn("ticket has no relay and no usable direct addresses after filtering")
		return NodeAddress{}, ErrNoReachability
	}

	addr := NodeAddress{
		NodeID:          nodeID,
		RelayURL:        wire.RelayURL,
		DirectAddresses: filtered,
	}

	logger.WithFields(logrus.Fields{
		"direct_addresses": len(filtered),
		"has_relay":        wire.RelayURL != "",
	}).Debug("ticket deserialized")

	return addr, nil
}

// IsTicket reports whether s looks like a p2psh ticket. The prefix match
// is case-insensitive so a ticket pasted with altered case still recognizes.
func IsTicket(s string) bool {
	return len(s) >= len(Prefix) && strings.EqualFold(s[:len(Prefix)], Prefix)
}

// filterUseful keeps only addresses that pass Useful, preserving order and
// never returning nil for an empty result (callers rely on len() == 0).
func filterUseful(addrs []string) []string {
	kept := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if Useful(a) {
			kept = append(kept, a)
		}
	}
	return kept
}

// Useful reports whether an "ip:port" direct address is worth advertising
// to a remote peer: not loopback, not link-local, and not the common
// Docker bridge gateway heuristic.
func Useful(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return false
	}

	if v4 := ip.To4(); v4 != nil && isDockerBridgeGateway(v4) {
		return false
	}

	return true
}

// isDockerBridgeGateway matches the 172.{16..31}.0.1 heuristic used to
// reject addresses that are almost certainly a container's default
// gateway rather than a path to the actual peer.
func isDockerBridgeGateway(v4 net.IP) bool {
	if v4[0] != 172 {
		return false
	}
	if v4[1] < 16 || v4[1] > 31 {
		return false
	}
	return v4[2] == 0 && v4[3] == 1
}

// ParseConnectTarget decodes s as a ticket, falling back to treating it as
// a bare "host:port" direct address for ad-hoc LAN use without a
// rendezvous step. It never changes the wire ticket format; the fallback
// exists purely for the CLI/embedding layer.
func ParseConnectTarget(s string) (NodeAddress, error) {
	if IsTicket(s) {
		return Deserialize(s)
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return NodeAddress{}, fmt.Errorf("%w: %q is neither a ticket nor a host:port", ErrInvalidTicket, s)
	}

	if _, err := strconv.ParseUint(portStr, 10, 16); err != nil {
		return NodeAddress{}, fmt.Errorf("%w: invalid port in %q", ErrInvalidTicket, s)
	}

	addr := host + ":" + portStr
	return NodeAddress{
		DirectAddresses: []string{addr},
	}, nil
}
