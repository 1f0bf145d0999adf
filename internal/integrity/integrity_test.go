package integrity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransmitterChecksumMatchesReferenceFNV(t *testing.T) {
	data := []byte("ABCDEFGHI")
	got := TransmitterChecksum(data)
	assert.Len(t, got, 8)

	ref := fnv1a32Reference(data)
	assert.Equal(t, got, fmtHex8(ref))
}

func fmtHex8(v uint32) string {
	const hexdigits = "0123456789abcdef"
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = hexdigits[v&0xF]
		v >>= 4
	}
	return string(b)
}

func TestComputeSecondaryHashesProducesNonEmptyValues(t *testing.T) {
	hashes := ComputeSecondaryHashes([]byte("hello"))
	assert.Len(t, hashes.MD5, 32)
	assert.Len(t, hashes.SHA1, 40)
	assert.Len(t, hashes.SHA256, 64)
	assert.Len(t, hashes.CRC32, 8)
}

func TestIsJPEGStructurallyValid(t *testing.T) {
	valid := []byte{0xFF, 0xD8, 0x00, 0x00, 0xFF, 0xD9}
	assert.True(t, IsJPEGStructurallyValid(valid))

	invalid := []byte{0x00, 0x00, 0xFF, 0xD9}
	assert.False(t, IsJPEGStructurallyValid(invalid))

	assert.False(t, IsJPEGStructurallyValid([]byte{0xFF}))
}

func TestRequiresStructuralCheck(t *testing.T) {
	assert.True(t, RequiresStructuralCheck("image/jpeg"))
	assert.True(t, RequiresStructuralCheck("IMAGE/JPG"))
	assert.False(t, RequiresStructuralCheck("application/octet-stream"))
}

func TestAtomicWriteFileWritesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	require.NoError(t, AtomicWriteFile(path, []byte("payload")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}

func TestReportWriteFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	report := NewReport("2026-07-31", dir)
	report.Add("f.bin", filepath.Join(dir, "f.bin"), 9, "abc12345", ComputeSecondaryHashes([]byte("ABCDEFGHI")))

	path := filepath.Join(dir, "integrity_report.json")
	require.NoError(t, report.WriteFile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "abc12345")
}
