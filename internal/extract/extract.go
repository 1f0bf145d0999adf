// Package extract runs the per-chunk QR extraction pipeline: decode
// frames from a videosource.Source, detect QR codes, deduplicate, and
// emit observations to a chunk's sidecar and the event bus.
package extract

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ArqonAi/qrx/internal/events"
	"github.com/ArqonAi/qrx/internal/qrreader"
	"github.com/ArqonAi/qrx/internal/sidecar"
	"github.com/ArqonAi/qrx/internal/videosource"
)

// Topology selects between the two interchangeable worker structures.
type Topology int

const (
	TopologyTemporalParallel Topology = iota
	TopologyProducerConsumer
)

// dedupWindow is a per-worker sliding window over recently seen
// payload hashes, evicting entries older than W = 2*fps frames.
type dedupWindow struct {
	window   int64
	lastSeen map[string]int64
}

func newDedupWindow(fps float64) *dedupWindow {
	w := int64(2 * fps)
	if w < 1 {
		w = 1
	}
	return &dedupWindow{window: w, lastSeen: map[string]int64{}}
}

// seen reports whether payload was already observed within the
// current sliding window, and records frameIndex as its latest
// sighting either way.
func (d *dedupWindow) seen(payload string, frameIndex int64) bool {
	last, ok := d.lastSeen[payload]
	isDup := ok && frameIndex-last <= d.window
	d.lastSeen[payload] = frameIndex
	d.evictOlderThan(frameIndex)
	return isDup
}

func (d *dedupWindow) evictOlderThan(frameIndex int64) {
	for payload, last := range d.lastSeen {
		if frameIndex-last > d.window {
			delete(d.lastSeen, payload)
		}
	}
}

// ChunkJob describes one chunk's extraction work.
type ChunkJob struct {
	ChunkID     int
	StartMs     int64
	EndMs       int64
	Stride      int
	FPS         float64
	WorkerCount int
	Topology    Topology
}

// Result summarizes one chunk's completed extraction run.
type Result struct {
	ChunkID     int
	QRCount     int
	FrameCount  int
	SkipCount   int
	Failed      bool
	FailureErr  error
}

// Worker runs a single chunk's extraction against a Source, writing
// observations to a sidecar.Writer and the event bus as it goes.
type Worker struct {
	Reader qrreader.Reader
	Bus    *events.Bus
}

func NewWorker(reader qrreader.Reader, bus *events.Bus) *Worker {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Worker{Reader: reader, Bus: bus}
}

// Run extracts job's window from src, writing observations through w.
// It checks ctx cancellation before each frame is dispatched.
func (worker *Worker) Run(ctx context.Context, job ChunkJob, src videosource.Source, w *sidecar.Writer) Result {
	result := Result{ChunkID: job.ChunkID}

	var skips atomic.Int64
	onSkip := func(frameIndex int, err error) {
		skips.Add(1)
	}

	switch job.Topology {
	case TopologyProducerConsumer:
		result = worker.runProducerConsumer(ctx, job, src, w, onSkip, result)
	default:
		result = worker.runTemporalParallel(ctx, job, src, w, onSkip, result)
	}
	result.SkipCount = int(skips.Load())
	return result
}

// runTemporalParallel processes frames from a single private Source
// sequentially: each worker processes a frame to completion before
// reading the next, bounding memory use to one frame per worker.
func (worker *Worker) runTemporalParallel(ctx context.Context, job ChunkJob, src videosource.Source, w *sidecar.Writer, onSkip func(int, error), result Result) Result {
	frames, err := src.Frames(ctx, job.StartMs, job.EndMs, job.Stride, onSkip)
	if err != nil {
		result.Failed = true
		result.FailureErr = fmt.Errorf("open frame source for chunk %d: %w", job.ChunkID, err)
		return result
	}

	dedup := newDedupWindow(job.FPS)
	for frame := range frames {
		select {
		case <-ctx.Done():
			result.FailureErr = ctx.Err()
			return result
		default:
		}
		worker.processFrame(job, frame, w, dedup, &result)
	}
	return result
}

// runProducerConsumer fans a bounded channel of frames out to
// worker-count consumer goroutines that run QR detection concurrently;
// deduplication happens afterwards, in the single writer loop. A
// single producer drains the frame source and enqueues items into a
// bounded channel of capacity 4*worker_count.
func (worker *Worker) runProducerConsumer(ctx context.Context, job ChunkJob, src videosource.Source, w *sidecar.Writer, onSkip func(int, error), result Result) Result {
	frames, err := src.Frames(ctx, job.StartMs, job.EndMs, job.Stride, onSkip)
	if err != nil {
		result.Failed = true
		result.FailureErr = fmt.Errorf("open frame source for chunk %d: %w", job.ChunkID, err)
		return result
	}

	workerCount := job.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}
	capacity := 4 * workerCount

	type ticketed struct {
		seq   int
		frame videosource.Frame
	}
	queue := make(chan ticketed, capacity)

	go func() {
		defer close(queue)
		seq := 0
		for frame := range frames {
			select {
			case <-ctx.Done():
				return
			case queue <- ticketed{seq: seq, frame: frame}:
			}
			seq++
		}
	}()

	// Single-writer sidecar requires serializing observation writes in
	// frame order, so consumers decode concurrently (out of order) but
	// hand results to one writer loop through writeCh, which reorders
	// by the producer's sequence ticket before writing.
	type decoded struct {
		seq      int
		frame    videosource.Frame
		payloads [][]byte
	}
	writeCh := make(chan decoded, capacity)
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for t := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}
				payloads := worker.Reader.Detect(t.frame.Luminance, t.frame.Width, t.frame.Height)
				select {
				case <-ctx.Done():
					return
				case writeCh <- decoded{seq: t.seq, frame: t.frame, payloads: payloads}:
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(writeCh)
	}()

	dedup := newDedupWindow(job.FPS)
	pending := map[int]decoded{}
	next := 0
	for d := range writeCh {
		select {
		case <-ctx.Done():
			result.FailureErr = ctx.Err()
			return result
		default:
		}
		pending[d.seq] = d
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			worker.emitPayloads(job, ready.frame, ready.payloads, w, dedup, &result)
			next++
		}
	}
	return result
}

func (worker *Worker) processFrame(job ChunkJob, frame videosource.Frame, w *sidecar.Writer, dedup *dedupWindow, result *Result) {
	payloads := worker.Reader.Detect(frame.Luminance, frame.Width, frame.Height)
	worker.emitPayloads(job, frame, payloads, w, dedup, result)
}

func (worker *Worker) emitPayloads(job ChunkJob, frame videosource.Frame, payloads [][]byte, w *sidecar.Writer, dedup *dedupWindow, result *Result) {
	result.FrameCount++
	for _, payload := range payloads {
		text := string(payload)
		if dedup.seen(text, int64(frame.Index)) {
			continue
		}
		result.QRCount++

		if w != nil {
			if err := w.WriteObservation(int64(frame.Index), frame.TimestampMs, text); err != nil {
				result.Failed = true
				result.FailureErr = fmt.Errorf("write sidecar for chunk %d: %w", job.ChunkID, err)
			}
		}

		worker.Bus.QrObserved(events.QrObservedEvent{
			ChunkID:     job.ChunkID,
			FrameNumber: frame.Index,
			TimestampMs: frame.TimestampMs,
			PayloadSize: len(payload),
		})
	}
}
