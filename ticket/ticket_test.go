package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTicket(t *testing.T) {
	assert.True(t, IsTicket("p2psh:abc"))
	assert.True(t, IsTicket("P2PSH:abc"))
	assert.True(t, IsTicket("P2Psh:abc"))
	assert.False(t, IsTicket("abc"))
	assert.False(t, IsTicket("p2ps:abc"))
	assert.False(t, IsTicket(""))
}

func TestUseful(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:1", false},
		{"169.254.1.1:2", false},
		{"172.17.0.1:3", false},
		{"172.15.0.1:4", true},
		{"172.32.0.1:4", true},
		{"10.0.0.4:4", true},
		{"[::1]:5", false},
		{"[fe80::1]:6", false},
		{"[2001:db8::1]:7", true},
		{"not-an-addr", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, Useful(c.addr), c.addr)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	addr := NodeAddress{
		NodeID:   []byte{1, 2, 3, 4},
		RelayURL: "https://relay.example/abc",
		DirectAddresses: []string{
			"127.0.0.1:1", "169.254.1.1:2", "172.17.0.1:3", "10.0.0.4:4",
		},
	}

	s, err := Serialize(addr)
	require.NoError(t, err)
	assert.True(t, IsTicket(s))

	got, err := Deserialize(s)
	require.NoError(t, err)

	assert.Equal(t, addr.NodeID, got.NodeID)
	assert.Equal(t, addr.RelayURL, got.RelayURL)
	assert.Equal(t, []string{"10.0.0.4:4"}, got.DirectAddresses)
}

func TestDeserializeRejectsBadPrefix(t *testing.T) {
	_, err := Deserialize("nope:xyz")
	assert.ErrorIs(t, err, ErrNotATicket)
}

func TestDeserializeRejectsTruncatedBody(t *testing.T) {
	_, err := Deserialize("p2psh:not-valid-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidTicket)
}

func TestDeserializeRejectsNoReachability(t *testing.T) {
	addr := NodeAddress{
		NodeID:          []byte{9},
		DirectAddresses: []string{"127.0.0.1:1"},
	}
	s, err := Serialize(addr)
	require.NoError(t, err)

	_, err = Deserialize(s)
	assert.ErrorIs(t, err, ErrNoReachability)
}

func TestDeserializeAcceptsRelayOnly(t *testing.T) {
	addr := NodeAddress{
		NodeID:   []byte{9},
		RelayURL: "https://relay.example/z",
	}
	s, err := Serialize(addr)
	require.NoError(t, err)

	got, err := Deserialize(s)
	require.NoError(t, err)
	assert.Equal(t, addr.RelayURL, got.RelayURL)
	assert.Empty(t, got.DirectAddresses)
}

func TestParseConnectTargetFallsBackToHostPort(t *testing.T) {
	addr, err := ParseConnectTarget("192.168.1.5:4433")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.5:4433"}, addr.DirectAddresses)
}

func TestParseConnectTargetRejectsGarbage(t *testing.T) {
	_, err := ParseConnectTarget("definitely not valid")
	assert.ErrorIs(t, err, ErrInvalidTicket)
}
