// Package resume persists and reconciles the run's resume_state.json,
// and recomputes per-chunk completion from sidecar contents.
package resume

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ArqonAi/qrx/internal/config"
	"github.com/ArqonAi/qrx/internal/sidecar"
)

// ChunkStatus is a chunk's lifecycle state in the resume document.
type ChunkStatus string

const (
	StatusPending    ChunkStatus = "pending"
	StatusInProgress ChunkStatus = "in_progress"
	StatusComplete   ChunkStatus = "complete"
	StatusFailed     ChunkStatus = "failed"
)

// ChunkState is one chunk's entry in the resume document.
type ChunkState struct {
	Status             ChunkStatus `json:"status"`
	LastFrameProcessed int64       `json:"last_frame_processed"`
	QRCodesFound       int         `json:"qr_codes_found"`
}

// State is the full resume_state.json document.
type State struct {
	Version         int                   `json:"version"`
	RunID           string                `json:"run_id"`
	InputFile       string                `json:"input_file"`
	OutputDir       string                `json:"output_dir"`
	ChunkCount      int                   `json:"chunk_count"`
	ThreadCount     int                   `json:"thread_count"`
	SkipFrames      int                   `json:"skip_frames"`
	PhaseCompleted  int                   `json:"phase_completed"`
	Chunks          map[string]ChunkState `json:"chunks"`
	LastUpdateEpoch int64                 `json:"last_update"`
}

const stateVersion = 1

// New builds a fresh resume state for a run about to start phase 1.
func New(runID string, cfg config.Config, nowUnix int64) *State {
	return &State{
		Version:         stateVersion,
		RunID:           runID,
		InputFile:       cfg.InputFile,
		OutputDir:       cfg.OutputDir,
		ChunkCount:      cfg.ChunkCount,
		ThreadCount:     cfg.WorkerCount,
		SkipFrames:      cfg.FrameStride,
		Chunks:          map[string]ChunkState{},
		LastUpdateEpoch: nowUnix,
	}
}

// Load reads resume_state.json, returning (nil, false, nil) if it
// doesn't exist.
func Load(path string) (*State, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read resume state %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, false, fmt.Errorf("parse resume state %s: %w", path, err)
	}
	return &s, true, nil
}

// Save atomically writes the resume state via temp+rename so a crash
// mid-write never leaves a truncated or corrupt state file behind.
func (s *State) Save(path string, nowUnix int64) error {
	s.LastUpdateEpoch = nowUnix
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal resume state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write resume state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename resume state into place: %w", err)
	}
	return nil
}

// Compatible reports whether a loaded state can be reused for cfg. If
// the input path or chunk count differs the state is stale and the
// caller should discard it and plan afresh.
func (s *State) Compatible(cfg config.Config) bool {
	return s.InputFile == cfg.InputFile && s.ChunkCount == cfg.ChunkCount
}

// ReconcileResult is the outcome of re-deriving one chunk's completion
// from its sidecar on disk.
type ReconcileResult struct {
	ChunkID      int
	Complete     bool
	ResumeFrame  int64 // next frame-stride-aligned frame to extract from, if not complete
	Stats        sidecar.Stats
	SidecarFound bool
}

// Reconcile derives a single chunk's completion from its sidecar on
// disk: parse it, locate max(frame_number), recompute completion, and
// if incomplete compute the next stride-aligned restart frame.
func Reconcile(chunkID int, sidecarPath string, expectedFrames int64, stride int, terminal bool, criteria config.CompletionCriteria) (ReconcileResult, error) {
	records, err := sidecar.Read(sidecarPath)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile chunk %d: %w", chunkID, err)
	}
	if len(records) == 0 {
		return ReconcileResult{ChunkID: chunkID, Complete: false, ResumeFrame: 0, SidecarFound: false}, nil
	}

	stats := sidecar.ComputeStats(records)
	complete := sidecar.IsComplete(stats, expectedFrames, terminal, criteria)

	result := ReconcileResult{
		ChunkID:      chunkID,
		Complete:     complete,
		Stats:        stats,
		SidecarFound: true,
	}
	if !complete {
		result.ResumeFrame = nextStrideAligned(stats.MaxFrame, stride)
	}
	return result, nil
}

// nextStrideAligned returns the next frame index, strictly after
// lastFrame, that is a multiple of stride.
func nextStrideAligned(lastFrame int64, stride int) int64 {
	if stride <= 0 {
		stride = 1
	}
	s := int64(stride)
	next := lastFrame + 1
	if rem := next % s; rem != 0 {
		next += s - rem
	}
	return next
}

// PhaseSkip reports whether every reconciled chunk is complete, in
// which case extraction can be skipped entirely and the run jumps
// straight to decode.
func PhaseSkip(results []ReconcileResult) bool {
	for _, r := range results {
		if !r.Complete {
			return false
		}
	}
	return len(results) > 0
}
