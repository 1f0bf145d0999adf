package videosource

import (
	"context"
	"testing"

	"github.com/ArqonAi/qrx/internal/chunkplan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Frame) []Frame {
	t.Helper()
	var out []Frame
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestFakeSourceRespectsWindowAndStride(t *testing.T) {
	frames := []Frame{
		{Index: 0, TimestampMs: 0},
		{Index: 1, TimestampMs: 100},
		{Index: 2, TimestampMs: 200},
		{Index: 3, TimestampMs: 300},
		{Index: 4, TimestampMs: 400},
	}
	src := NewFakeSource(chunkplan.Descriptor{FPS: 10}, frames)

	ch, err := src.Frames(context.Background(), 100, 400, 2, nil)
	require.NoError(t, err)
	got := collect(t, ch)

	require.Len(t, got, 2)
	assert.Equal(t, int64(100), got[0].TimestampMs)
	assert.Equal(t, int64(300), got[1].TimestampMs)
}

func TestFakeSourceSkipsFailedFrameWithoutAborting(t *testing.T) {
	frames := []Frame{
		{Index: 0, TimestampMs: 0},
		{Index: 1, TimestampMs: 100},
		{Index: 2, TimestampMs: 200},
	}
	src := NewFakeSource(chunkplan.Descriptor{FPS: 10}, frames)
	src.FailFrame(1)

	var skipped []int
	ch, err := src.Frames(context.Background(), 0, 300, 1, func(idx int, _ error) {
		skipped = append(skipped, idx)
	})
	require.NoError(t, err)
	got := collect(t, ch)

	require.Len(t, got, 2)
	assert.Equal(t, []int{1}, skipped)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
}
