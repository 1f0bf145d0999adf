// Package videosource is the frame-source abstraction: given a video
// path and an optional time window, produce a finite, lazily-consumed
// sequence of decoded luminance frames. Container demuxing is kept
// behind this boundary by shelling out to ffmpeg.
package videosource

import (
	"context"

	"github.com/ArqonAi/qrx/internal/chunkplan"
)

// Frame is one decoded, luminance-only frame. Index is the frame's
// position at the descriptor's fps (FFmpegSource derives TimestampMs
// from it as index/fps*1000) and is approximate across seeks —
// callers use it only for ordering within a single Source.
type Frame struct {
	Index       int
	TimestampMs int64
	Luminance   []byte
	Width       int
	Height      int
}

// Source is the closed set of frame-source backends. Today there is
// one implementation, FFmpegSource; a second backend would implement
// the same interface without the extraction pipeline changing at all.
type Source interface {
	// Descriptor returns the video's immutable metadata.
	Descriptor() chunkplan.Descriptor

	// Frames lazily decodes frames in [startMs, endMs), emitting every
	// stride-th decoded frame in monotone timestamp order. The frame
	// channel is closed when the window is exhausted or ctx is done.
	// Per-frame decode failures are reported on onSkip (never fatal);
	// a nil onSkip silently drops them.
	Frames(ctx context.Context, startMs, endMs int64, stride int, onSkip func(frameIndex int, err error)) (<-chan Frame, error)

	Close() error
}
