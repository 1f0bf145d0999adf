package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQrxErrorWrapsUnderlying(t *testing.T) {
	underlying := errors.New("disk full")
	err := TransientIO("sidecar flush failed", underlying)

	require.Error(t, err)
	assert.Equal(t, underlying, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "transient I/O error")
	assert.Contains(t, err.Error(), "disk full")
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := Decode("bad base64", nil)
	b := Decode("different message, same kind", nil)
	c := Integrity("checksum mismatch", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestKindStringIsStable(t *testing.T) {
	cases := map[Kind]string{
		KindFatalConfig: "fatal configuration error",
		KindTransientIO: "transient I/O error",
		KindDecode:      "decode error",
		KindIntegrity:   "integrity failure",
		KindInterrupted: "interrupted",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
