package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadataDecodesRequiredFields(t *testing.T) {
	md, err := ParseMetadata("M:1:f.bin:application/octet-stream:9:3:3:1:1.0:30:2800:0:M:abc12345:")
	require.NoError(t, err)
	assert.Equal(t, "f.bin", md.FileName)
	assert.Equal(t, "application/octet-stream", md.FileType)
	assert.Equal(t, int64(9), md.FileSize)
	assert.Equal(t, 3, md.ChunksCount)
	assert.Equal(t, "abc12345", md.FileChecksum)
}

func TestParseMetadataPercentDecodesFilename(t *testing.T) {
	md, err := ParseMetadata("M:1:my%20file.txt:text%2Fplain:3:1")
	require.NoError(t, err)
	assert.Equal(t, "my file.txt", md.FileName)
	assert.Equal(t, "text/plain", md.FileType)
}

func TestParseMetadataRejectsTooFewFields(t *testing.T) {
	_, err := ParseMetadata("M:1:f.bin")
	assert.Error(t, err)
}

func TestParseDataSingleSystematicRecord(t *testing.T) {
	d, err := ParseData("D:0:0:0:3:1:0:QUJD")
	require.NoError(t, err)
	require.Equal(t, BodySystematic, d.Kind)
	require.Len(t, d.Systematic, 1)
	assert.Equal(t, 0, d.Systematic[0].ChunkIndex)
	assert.Equal(t, "ABC", string(d.Systematic[0].Data))
}

func TestParseDataMultiSystematicRecordsPipeSeparated(t *testing.T) {
	d, err := ParseData("D:1:0:0:3:2:0:QUJD|1:REVG")
	require.NoError(t, err)
	require.Equal(t, BodySystematic, d.Kind)
	require.Len(t, d.Systematic, 2)
	assert.Equal(t, "ABC", string(d.Systematic[0].Data))
	assert.Equal(t, "DEF", string(d.Systematic[1].Data))
}

func TestParseDataCodedBody(t *testing.T) {
	d, err := ParseData("D:2:1:1:3:3:0,1,2:REVG")
	require.NoError(t, err)
	require.Equal(t, BodyCoded, d.Kind)
	assert.Equal(t, []int{0, 1, 2}, d.CodedIndices)
	assert.Equal(t, "DEF", string(d.CodedPayload))
}

func TestParseDataRejectsTooFewFields(t *testing.T) {
	_, err := ParseData("D:0:0:0")
	assert.Error(t, err)
}

func TestParseDataSkipsBadSystematicRecordButKeepsRest(t *testing.T) {
	d, err := ParseData("D:3:0:0:3:2:0:notbase64!!|1:REVG")
	require.NoError(t, err)
	require.Equal(t, BodySystematic, d.Kind)
	require.Len(t, d.Systematic, 1)
	assert.Equal(t, 1, d.Systematic[0].ChunkIndex)
}

func TestDecodeBase64StripsWhitespaceAndPads(t *testing.T) {
	out, err := DecodeBase64("QUJD") // no padding needed
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))

	out, err = DecodeBase64(" QU JD\n") // whitespace stripped
	require.NoError(t, err)
	assert.Equal(t, "ABC", string(out))

	out, err = DecodeBase64("QQ") // needs padding to "QQ=="
	require.NoError(t, err)
	assert.Equal(t, "A", string(out))
}
