package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChunkCountIsAtLeastFour(t *testing.T) {
	cfg := Default()
	assert.GreaterOrEqual(t, cfg.ChunkCount, 4)
	assert.Equal(t, DefaultCompletionCriteria(), cfg.Criteria)
}

func TestValidateRequiresReadableInput(t *testing.T) {
	cfg := Default()
	cfg.InputFile = filepath.Join(t.TempDir(), "missing.mp4")
	cfg.OutputDir = t.TempDir()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not readable")
}

func TestValidateCreatesOutputDir(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0644))

	cfg := Default()
	cfg.InputFile = input
	cfg.OutputDir = filepath.Join(dir, "out", "nested")

	require.NoError(t, cfg.Validate())
	info, err := os.Stat(cfg.OutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSidecarPathIsOneIndexedAndZeroPadded(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/tmp/out"
	assert.Equal(t, "/tmp/out/chunk_001.jsonl", cfg.SidecarPath(0))
	assert.Equal(t, "/tmp/out/chunk_042.jsonl", cfg.SidecarPath(41))
}

func TestLoadFileMergesOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qrx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_count: 16\nstatus_addr: \":8080\"\n"), 0644))

	cfg := Default()
	cfg.WorkerCount = 7
	require.NoError(t, LoadFile(cfg, path))

	assert.Equal(t, 16, cfg.ChunkCount)
	assert.Equal(t, ":8080", cfg.StatusAddr)
	assert.Equal(t, 7, cfg.WorkerCount) // untouched by the file
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadFile(cfg, filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestLiveWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qrx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_count: 8\n"), 0644))

	live := NewLive(*Default(), path)
	done := make(chan struct{})
	defer close(done)
	require.NoError(t, live.Watch(done, func(error) {}))

	require.NoError(t, os.WriteFile(path, []byte("chunk_count: 32\n"), 0644))

	require.Eventually(t, func() bool {
		return live.Snapshot().ChunkCount == 32
	}, 2*time.Second, 10*time.Millisecond)
}
