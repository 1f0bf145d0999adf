// Package qrreader is the QR-detection capability:
// detect(luminance, width, height) -> set of payloads. Wraps gozxing,
// generalized from "decode one code from a PNG" to "find every code in
// a raw luminance grid".
package qrreader

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Reader detects QR payloads in a single frame. Implementations must
// never panic: any internal failure is reported as zero payloads.
type Reader interface {
	Detect(luminance []byte, width, height int) [][]byte
}

// maxCodesPerFrame bounds the iterative multi-decode loop below so a
// pathological frame can't spin forever.
const maxCodesPerFrame = 16

// GozxingReader is the one Reader implementation this module ships.
type GozxingReader struct {
	decoder *qrcode.QRCodeReader
}

func NewGozxingReader() *GozxingReader {
	return &GozxingReader{decoder: qrcode.NewQRCodeReader()}
}

// Detect finds every QR code in the frame. gozxing's reader decodes
// one symbol per call, so multiple codes are found by decoding,
// blanking the decoded symbol's bounding box, and retrying — the
// standard iterative technique for multi-symbol detection without a
// dedicated multi-reader. If the direct pass finds nothing, a
// contrast-enhanced copy of the frame is tried once before giving up.
func (r *GozxingReader) Detect(luminance []byte, width, height int) [][]byte {
	defer func() { recover() }() //nolint:errcheck // spec: never panic on malformed input

	payloads := r.detectIterative(luminance, width, height)
	if len(payloads) > 0 {
		return payloads
	}

	enhanced := enhanceContrast(luminance)
	return r.detectIterative(enhanced, width, height)
}

func (r *GozxingReader) detectIterative(luminance []byte, width, height int) [][]byte {
	var out [][]byte
	working := append([]byte(nil), luminance...)

	for i := 0; i < maxCodesPerFrame; i++ {
		payload, box, ok := r.decodeOnce(working, width, height)
		if !ok {
			break
		}
		out = append(out, payload)
		blank(working, width, height, box)
	}
	return out
}

type bbox struct{ minX, minY, maxX, maxY int }

func (r *GozxingReader) decodeOnce(luminance []byte, width, height int) ([]byte, bbox, bool) {
	img := toGrayImage(luminance, width, height)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, bbox{}, false
	}

	result, err := r.decoder.Decode(bmp, nil)
	if err != nil || result == nil {
		return nil, bbox{}, false
	}

	box := boundingBox(result, width, height)
	return []byte(result.GetText()), box, true
}

func toGrayImage(luminance []byte, width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	n := width * height
	if n > len(luminance) {
		n = len(luminance)
	}
	copy(img.Pix, luminance[:n])
	return img
}

// boundingBox derives a conservative rectangle around the decoded
// symbol's finder points, padded so the blank pass fully erases it.
func boundingBox(result *gozxing.Result, width, height int) bbox {
	points := result.GetResultPoints()
	if len(points) == 0 {
		return bbox{0, 0, width, height}
	}
	minX, minY := width, height
	maxX, maxY := 0, 0
	for _, p := range points {
		x, y := int(p.GetX()), int(p.GetY())
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	const pad = 8
	minX = clamp(minX-pad, 0, width)
	minY = clamp(minY-pad, 0, height)
	maxX = clamp(maxX+pad, 0, width)
	maxY = clamp(maxY+pad, 0, height)
	return bbox{minX, minY, maxX, maxY}
}

func blank(luminance []byte, width, height int, box bbox) {
	for y := box.minY; y < box.maxY; y++ {
		for x := box.minX; x < box.maxX; x++ {
			idx := y*width + x
			if idx >= 0 && idx < len(luminance) {
				luminance[idx] = 255
			}
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Reader = (*GozxingReader)(nil)
