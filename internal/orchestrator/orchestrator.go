// Package orchestrator runs the three-phase pipeline: video analysis
// and chunk planning, parallel QR extraction, and sidecar merge plus
// fountain decode plus file emission.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ArqonAi/qrx/internal/chunkplan"
	"github.com/ArqonAi/qrx/internal/config"
	"github.com/ArqonAi/qrx/internal/events"
	"github.com/ArqonAi/qrx/internal/extract"
	"github.com/ArqonAi/qrx/internal/fountain"
	"github.com/ArqonAi/qrx/internal/integrity"
	"github.com/ArqonAi/qrx/internal/packet"
	"github.com/ArqonAi/qrx/internal/qrreader"
	"github.com/ArqonAi/qrx/internal/resume"
	"github.com/ArqonAi/qrx/internal/sidecar"
	"github.com/ArqonAi/qrx/internal/videosource"
	"golang.org/x/sync/errgroup"
)

// SourceFactory builds the per-chunk frame source. Production code
// passes a closure around videosource.NewFFmpegSource; tests inject a
// fake.
type SourceFactory func(inputPath string) (videosource.Source, error)

// Orchestrator drives a single run end to end.
type Orchestrator struct {
	Config  config.Config
	Bus     *events.Bus
	Reader  qrreader.Reader
	NewSrc  SourceFactory
	RunID   string
	NowUnix func() int64
}

// RunResult summarizes a completed run for CLI/TUI reporting.
type RunResult struct {
	ChunksTotal      int
	ChunksComplete   int
	FilesWritten     []string
	ErrorLog         []string
}

// Run executes all three phases in sequence, skipping phase 2 when
// resume reconciliation finds every chunk already complete.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	src, err := o.NewSrc(o.Config.InputFile)
	if err != nil {
		return RunResult{}, fmt.Errorf("open video source: %w", err)
	}
	defer src.Close()

	desc := src.Descriptor()

	o.Bus.PhaseStarted(events.PhaseStartedEvent{Phase: 1, Name: "analysis"})
	plan, err := o.plan(desc)
	if err != nil {
		return RunResult{}, err
	}
	statePath := o.Config.ResumeStatePath()
	state, totalChunks, err := o.loadOrCreateState(plan)
	if err != nil {
		return RunResult{}, err
	}
	o.Bus.PhaseComplete(events.PhaseCompleteEvent{Phase: 1, Name: "analysis"})

	reconciled := o.reconcile(plan, desc, totalChunks)
	if !o.Config.Phase3Only && !resume.PhaseSkip(reconciled) {
		if err := o.extractAll(ctx, plan, desc, src, reconciled, state, statePath); err != nil {
			return RunResult{}, err
		}
		reconciled = o.reconcile(plan, desc, totalChunks)
	}

	result, err := o.decode(plan)
	if err != nil {
		return RunResult{}, err
	}
	result.ChunksTotal = len(plan.Intervals)
	for _, r := range reconciled {
		if r.Complete {
			result.ChunksComplete++
		}
	}
	return result, nil
}

func (o *Orchestrator) plan(desc chunkplan.Descriptor) (chunkplan.Plan, error) {
	var plan chunkplan.Plan
	var err error
	if o.Config.ChunkSeconds > 0 {
		plan, err = chunkplan.BySeconds(desc.DurationMs, o.Config.ChunkSeconds)
	} else {
		plan, err = chunkplan.ByCount(desc.DurationMs, o.Config.ChunkCount)
	}
	if err != nil {
		return chunkplan.Plan{}, fmt.Errorf("plan chunks: %w", err)
	}
	if err := plan.Validate(desc.DurationMs); err != nil {
		return chunkplan.Plan{}, fmt.Errorf("invalid chunk plan: %w", err)
	}
	return plan, nil
}

func (o *Orchestrator) loadOrCreateState(plan chunkplan.Plan) (*resume.State, int64, error) {
	statePath := o.Config.ResumeStatePath()
	now := o.now()

	if o.Config.Resume {
		if s, ok, err := resume.Load(statePath); err != nil {
			return nil, 0, err
		} else if ok && s.Compatible(o.Config) {
			return s, int64(len(plan.Intervals)), nil
		}
	}

	s := resume.New(o.RunID, o.Config, now)
	return s, int64(len(plan.Intervals)), nil
}

// reconcile recomputes per-chunk completion from sidecars on disk.
func (o *Orchestrator) reconcile(plan chunkplan.Plan, desc chunkplan.Descriptor, totalChunks int64) []resume.ReconcileResult {
	results := make([]resume.ReconcileResult, 0, len(plan.Intervals))
	for _, interval := range plan.Intervals {
		expected := desc.ExpectedFrames(interval.DurationMs(), o.Config.FrameStride)
		terminal := int64(interval.ID) == totalChunks-1
		path := o.Config.SidecarPath(interval.ID)
		r, err := resume.Reconcile(interval.ID, path, expected, o.Config.FrameStride, terminal, o.Config.Criteria)
		if err != nil {
			o.Bus.Error(events.ErrorEvent{Source: "resume", Message: err.Error()})
			r = resume.ReconcileResult{ChunkID: interval.ID, Complete: false}
		}
		results = append(results, r)
	}
	return results
}

// extractAll fans the chunk plan out across worker goroutines using
// errgroup as the structured-concurrency scope that awaits every
// worker.
func (o *Orchestrator) extractAll(ctx context.Context, plan chunkplan.Plan, desc chunkplan.Descriptor, src videosource.Source, reconciled []resume.ReconcileResult, state *resume.State, statePath string) error {
	o.Bus.PhaseStarted(events.PhaseStartedEvent{Phase: 2, Name: "extraction"})

	g, gctx := errgroup.WithContext(ctx)
	for i, interval := range plan.Intervals {
		interval := interval
		r := reconciled[i]
		if r.Complete {
			continue
		}
		startMs := interval.StartMs
		if r.ResumeFrame > 0 && desc.FPS > 0 {
			startMs = int64(float64(r.ResumeFrame) / desc.FPS * 1000)
			if startMs < interval.StartMs {
				startMs = interval.StartMs
			}
		}

		g.Go(func() error {
			w, err := sidecar.NewWriter(o.Config.SidecarPath(interval.ID))
			if err != nil {
				o.Bus.ChunkComplete(events.ChunkCompleteEvent{ChunkID: interval.ID, Retrying: true})
				return nil // a single worker failure must not abort the others
			}
			defer w.Close()

			worker := extract.NewWorker(o.Reader, o.Bus)
			job := extract.ChunkJob{
				ChunkID:     interval.ID,
				StartMs:     startMs,
				EndMs:       interval.EndMs,
				Stride:      o.Config.FrameStride,
				FPS:         desc.FPS,
				WorkerCount: o.Config.WorkerCount,
				Topology:    extract.TopologyTemporalParallel,
			}
			res := worker.Run(gctx, job, src, w)
			o.Bus.ChunkComplete(events.ChunkCompleteEvent{
				ChunkID:    interval.ID,
				QRCount:    res.QRCount,
				FrameCount: res.FrameCount,
				Retrying:   res.Failed,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("extraction phase: %w", err)
	}

	o.Bus.PhaseComplete(events.PhaseCompleteEvent{Phase: 2, Name: "extraction"})
	if state != nil {
		state.PhaseCompleted = 2
		_ = state.Save(statePath, o.now())
	}
	return nil
}

// decode runs phase 3: merge every sidecar's observations sorted by
// frame_number (the sole source of the temporal-routing correctness
// property) and feed them through the fountain decoder.
func (o *Orchestrator) decode(plan chunkplan.Plan) (RunResult, error) {
	o.Bus.PhaseStarted(events.PhaseStartedEvent{Phase: 3, Name: "decode"})

	type merged struct {
		frameNumber int64
		timestampMs int64
		chunkID     int
		data        string
	}
	var all []merged
	for _, interval := range plan.Intervals {
		records, err := sidecar.Read(o.Config.SidecarPath(interval.ID))
		if err != nil {
			return RunResult{}, fmt.Errorf("read sidecar for chunk %d: %w", interval.ID, err)
		}
		for _, rec := range records {
			if rec.Type != sidecar.RecordQrCode {
				continue
			}
			all = append(all, merged{
				frameNumber: rec.FrameNumber,
				timestampMs: rec.TimestampMs,
				chunkID:     interval.ID,
				data:        rec.Data,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].frameNumber < all[j].frameNumber })

	mux := fountain.NewMultiplexer(o.Bus)
	var written []string
	mux.OnFileReady = func(md packet.Metadata, data []byte) {
		path := filepath.Join(o.Config.OutputDir, md.FileName)
		if err := integrity.AtomicWriteFile(path, data); err != nil {
			o.Bus.Error(events.ErrorEvent{Source: "decode", Message: err.Error()})
			return
		}
		written = append(written, path)
	}

	for _, m := range all {
		mux.Process(fountain.Observation{
			FrameNumber: m.frameNumber,
			TimestampMs: m.timestampMs,
			ChunkID:     m.chunkID,
			Payload:     m.data,
		})
	}

	o.Bus.PhaseComplete(events.PhaseCompleteEvent{Phase: 3, Name: "decode"})
	return RunResult{FilesWritten: written, ErrorLog: mux.ErrorLog}, nil
}

func (o *Orchestrator) now() int64 {
	if o.NowUnix != nil {
		return o.NowUnix()
	}
	return 0
}
