package qrreader

import (
	"bytes"
	"image"
	_ "image/png"
	"testing"

	qrencode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderLuminance encodes text as a QR PNG with skip2/go-qrcode and
// flattens it to an 8-bit luminance grid, giving tests real pixel data
// to decode without a video fixture.
func renderLuminance(t *testing.T, text string, size int) ([]byte, int, int) {
	t.Helper()
	png, err := qrencode.Encode(text, qrencode.Medium, size)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(png))
	require.NoError(t, err)

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lum := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			lum[y*w+x] = byte((r + g + b) / 3 >> 8)
		}
	}
	return lum, w, h
}

func TestGozxingReaderDecodesRenderedQR(t *testing.T) {
	lum, w, h := renderLuminance(t, "D:1:0:0:3:1:0:QUJD", 256)

	reader := NewGozxingReader()
	payloads := reader.Detect(lum, w, h)

	require.Len(t, payloads, 1)
	assert.Equal(t, "D:1:0:0:3:1:0:QUJD", string(payloads[0]))
}

func TestGozxingReaderNeverPanicsOnGarbage(t *testing.T) {
	reader := NewGozxingReader()
	assert.NotPanics(t, func() {
		payloads := reader.Detect([]byte{1, 2, 3}, 10, 10)
		assert.Empty(t, payloads)
	})
}

func TestEnhanceContrastStretchesFlatRange(t *testing.T) {
	in := []byte{100, 110, 120, 130}
	out := enhanceContrast(in)
	assert.Equal(t, byte(0), out[0])
	assert.Equal(t, byte(255), out[3])
}

func TestFakeReaderRoundTrips(t *testing.T) {
	reader := NewFakeReader()
	marker := MarkerLuminance(7)
	reader.Set(marker, "M:1:f.bin:application/octet-stream:3")

	got := reader.Detect(marker, 1, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "M:1:f.bin:application/octet-stream:3", string(got[0]))
}
