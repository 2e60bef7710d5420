package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecureWipeZeroesData(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	assert.NoError(t, SecureWipe(data))
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, data)
}

func TestSecureWipeRejectsNil(t *testing.T) {
	assert.Error(t, SecureWipe(nil))
}

func TestZeroBytesIgnoresWipeError(t *testing.T) {
	assert.NotPanics(t, func() { ZeroBytes(nil) })
}
