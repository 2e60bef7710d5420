package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToWireFromWireRoundTrip(t *testing.T) {
	h := FileHeader{Name: "demo.txt", Size: 6, Blake3: "f1918e6f00000000000000000000000000000000000000000000000000000000"}

	wire, err := h.ToWire()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), wire[len(wire)-1])

	got, err := FromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestToWireStripsPathComponents(t *testing.T) {
	h := FileHeader{Name: "../../etc/passwd", Size: 1, Blake3: "ab"}
	wire, err := h.ToWire()
	require.NoError(t, err)

	got, err := FromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, "passwd", got.Name)
}

func TestFromWireRejectsEmpty(t *testing.T) {
	_, err := FromWire(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = FromWire([]byte("   \n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestFromWireRejectsGarbage(t *testing.T) {
	_, err := FromWire([]byte("not json"))
	assert.Error(t, err)
}
