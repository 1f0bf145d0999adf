package videosource

import (
	"context"
	"fmt"

	"github.com/ArqonAi/qrx/internal/chunkplan"
)

// FakeSource is an in-memory Source used by tests throughout the
// extraction pipeline so they don't depend on an ffmpeg binary or a
// real video fixture. Frames are supplied up front, keyed by index.
type FakeSource struct {
	desc       chunkplan.Descriptor
	frames     []Frame
	failAt     map[int]bool
	closeCalls int
}

func NewFakeSource(desc chunkplan.Descriptor, frames []Frame) *FakeSource {
	return &FakeSource{desc: desc, frames: frames, failAt: map[int]bool{}}
}

// FailFrame marks a frame index to report as a decode failure instead
// of emitting it, exercising the "tolerate single-frame decode
// failures" contract.
func (f *FakeSource) FailFrame(index int) {
	f.failAt[index] = true
}

func (f *FakeSource) Descriptor() chunkplan.Descriptor { return f.desc }

func (f *FakeSource) Close() error {
	f.closeCalls++
	return nil
}

func (f *FakeSource) Frames(ctx context.Context, startMs, endMs int64, stride int, onSkip func(int, error)) (<-chan Frame, error) {
	if stride <= 0 {
		stride = 1
	}
	out := make(chan Frame)
	go func() {
		defer close(out)
		count := 0
		for _, fr := range f.frames {
			if fr.TimestampMs < startMs || fr.TimestampMs >= endMs {
				continue
			}
			if count%stride != 0 {
				count++
				continue
			}
			count++

			select {
			case <-ctx.Done():
				return
			default:
			}

			if f.failAt[fr.Index] {
				if onSkip != nil {
					onSkip(fr.Index, fmt.Errorf("simulated decode failure"))
				}
				continue
			}

			select {
			case out <- fr:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ Source = (*FakeSource)(nil)
