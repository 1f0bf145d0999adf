package resume

import (
	"path/filepath"
	"testing"

	"github.com/ArqonAi/qrx/internal/config"
	"github.com/ArqonAi/qrx/internal/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume_state.json")
	cfg := *config.Default()
	cfg.InputFile = "video.mp4"
	cfg.OutputDir = t.TempDir()

	s := New("run-1", cfg, 1000)
	s.Chunks["1"] = ChunkState{Status: StatusComplete, LastFrameProcessed: 900, QRCodesFound: 310}
	require.NoError(t, s.Save(path, 1001))

	loaded, ok, err := Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "video.mp4", loaded.InputFile)
	assert.Equal(t, StatusComplete, loaded.Chunks["1"].Status)
	assert.Equal(t, int64(1001), loaded.LastUpdateEpoch)
}

func TestLoadMissingFileReturnsNotFoundNotError(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompatibleRequiresInputAndChunkCountMatch(t *testing.T) {
	cfg := *config.Default()
	cfg.InputFile = "video.mp4"
	cfg.ChunkCount = 4
	s := New("run-1", cfg, 0)

	assert.True(t, s.Compatible(cfg))

	other := cfg
	other.InputFile = "different.mp4"
	assert.False(t, s.Compatible(other))

	other2 := cfg
	other2.ChunkCount = 8
	assert.False(t, s.Compatible(other2))
}

func TestNextStrideAligned(t *testing.T) {
	assert.Equal(t, int64(500), nextStrideAligned(499, 1))
	assert.Equal(t, int64(500), nextStrideAligned(498, 5))
	assert.Equal(t, int64(505), nextStrideAligned(500, 5))
}

func TestReconcileMissingSidecarIsIncomplete(t *testing.T) {
	result, err := Reconcile(1, filepath.Join(t.TempDir(), "chunk_001.jsonl"), 1000, 1, false, config.DefaultCompletionCriteria())
	require.NoError(t, err)
	assert.False(t, result.Complete)
	assert.False(t, result.SidecarFound)
}

func TestReconcileIncompleteComputesResumeFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk_001.jsonl")
	w, err := sidecar.NewWriter(path)
	require.NoError(t, err)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, w.WriteObservation(i, i*33, "payload"))
	}
	require.NoError(t, w.Close())

	result, err := Reconcile(1, path, 1000, 1, false, config.DefaultCompletionCriteria())
	require.NoError(t, err)
	assert.False(t, result.Complete)
	assert.Equal(t, int64(10), result.ResumeFrame)
}

func TestPhaseSkipRequiresAllComplete(t *testing.T) {
	assert.True(t, PhaseSkip([]ReconcileResult{{Complete: true}, {Complete: true}}))
	assert.False(t, PhaseSkip([]ReconcileResult{{Complete: true}, {Complete: false}}))
	assert.False(t, PhaseSkip(nil))
}
