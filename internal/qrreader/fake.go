package qrreader

// FakeReader is a scripted Reader for tests elsewhere in the module
// that want deterministic QR payloads without rendering real QR PNGs.
// It is keyed by the exact luminance bytes it's asked to decode, so
// callers synthesize a small, distinct marker buffer per "frame"
// (e.g. MarkerLuminance(n)) instead of real pixel data.
type FakeReader struct {
	byMarker map[string][][]byte
}

func NewFakeReader() *FakeReader {
	return &FakeReader{byMarker: map[string][][]byte{}}
}

// MarkerLuminance builds a small, distinct luminance buffer tests can
// use as both the Source's Frame.Luminance and the FakeReader's key.
func MarkerLuminance(n int) []byte {
	return []byte{byte(n >> 8), byte(n)}
}

func (f *FakeReader) Set(marker []byte, payloads ...string) {
	bs := make([][]byte, len(payloads))
	for i, p := range payloads {
		bs[i] = []byte(p)
	}
	f.byMarker[string(marker)] = bs
}

func (f *FakeReader) Detect(luminance []byte, width, height int) [][]byte {
	return f.byMarker[string(luminance)]
}

var _ Reader = (*FakeReader)(nil)
