// Package chunkplan derives the video descriptor and partitions a
// video's duration into the chunk plan extraction workers operate
// over.
package chunkplan

import "fmt"

// Descriptor is derived once from the frame source at startup and is
// immutable thereafter.
type Descriptor struct {
	Width      int
	Height     int
	FPS        float64
	DurationMs int64
	TotalFrames int64
	Container  string
	CodecName  string // informational only, never used for decoding decisions
	HasAudio   bool   // informational only
}

// ExpectedFrames returns how many frames a source at this descriptor's
// fps is expected to decode within a duration, adjusted for stride.
func (d Descriptor) ExpectedFrames(durationMs int64, stride int) int64 {
	if stride <= 0 {
		stride = 1
	}
	frames := int64(float64(durationMs) / 1000.0 * d.FPS)
	return frames / int64(stride)
}

// Interval is a contiguous, half-open time range [StartMs, EndMs) with
// a stable integer id.
type Interval struct {
	ID      int
	StartMs int64
	EndMs   int64
}

func (iv Interval) DurationMs() int64 { return iv.EndMs - iv.StartMs }

// Plan is an ordered sequence of intervals covering [0, duration).
// The intervals are sorted, pairwise disjoint, and their union is
// exactly [0, duration).
type Plan struct {
	Intervals []Interval
}

// ByCount splits [0, durationMs) into exactly n contiguous intervals of
// equal length except the last, which absorbs any remainder so the
// plan always has exactly n intervals.
func ByCount(durationMs int64, n int) (Plan, error) {
	if n <= 0 {
		return Plan{}, fmt.Errorf("chunk count must be positive, got %d", n)
	}
	if durationMs <= 0 {
		return Plan{}, fmt.Errorf("duration must be positive, got %dms", durationMs)
	}
	step := durationMs / int64(n)
	if step == 0 {
		step = 1
	}
	intervals := make([]Interval, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * step
		end := start + step
		if i == n-1 {
			end = durationMs
		}
		intervals = append(intervals, Interval{ID: i, StartMs: start, EndMs: end})
	}
	return Plan{Intervals: intervals}, nil
}

// BySeconds splits [0, durationMs) into intervals of the given length
// in seconds, with the last interval shortened to fit.
func BySeconds(durationMs int64, seconds float64) (Plan, error) {
	if seconds <= 0 {
		return Plan{}, fmt.Errorf("chunk seconds must be positive, got %f", seconds)
	}
	if durationMs <= 0 {
		return Plan{}, fmt.Errorf("duration must be positive, got %dms", durationMs)
	}
	step := int64(seconds * 1000)
	if step == 0 {
		step = 1
	}
	return build(durationMs, step), nil
}

func build(durationMs, step int64) Plan {
	var intervals []Interval
	for start := int64(0); start < durationMs; start += step {
		end := start + step
		if end > durationMs {
			end = durationMs
		}
		intervals = append(intervals, Interval{ID: len(intervals), StartMs: start, EndMs: end})
	}
	return Plan{Intervals: intervals}
}

// Validate checks that intervals are sorted, disjoint, and their union
// is exactly [0, durationMs).
func (p Plan) Validate(durationMs int64) error {
	if len(p.Intervals) == 0 {
		return fmt.Errorf("chunk plan has no intervals")
	}
	if p.Intervals[0].StartMs != 0 {
		return fmt.Errorf("chunk plan does not start at 0")
	}
	for i, iv := range p.Intervals {
		if iv.ID != i {
			return fmt.Errorf("interval %d has out-of-order id %d", i, iv.ID)
		}
		if iv.StartMs >= iv.EndMs {
			return fmt.Errorf("interval %d is empty or inverted [%d, %d)", i, iv.StartMs, iv.EndMs)
		}
		if i > 0 && p.Intervals[i-1].EndMs != iv.StartMs {
			return fmt.Errorf("interval %d does not start where interval %d ends", i, i-1)
		}
	}
	last := p.Intervals[len(p.Intervals)-1]
	if last.EndMs != durationMs {
		return fmt.Errorf("chunk plan ends at %d, want %d", last.EndMs, durationMs)
	}
	return nil
}
