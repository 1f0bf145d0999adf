package orchestrator

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/ArqonAi/qrx/internal/chunkplan"
	"github.com/ArqonAi/qrx/internal/config"
	"github.com/ArqonAi/qrx/internal/events"
	"github.com/ArqonAi/qrx/internal/qrreader"
	"github.com/ArqonAi/qrx/internal/videosource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

// buildSingleChunkFixture wires one fake video (N=1 chunk, the
// single-chunk boundary case) carrying a systematic packet stream for
// a 9-byte file.
func buildSingleChunkFixture(t *testing.T) (videosource.Source, qrreader.Reader) {
	t.Helper()
	reader := qrreader.NewFakeReader()

	payloads := []string{
		"M:1:f.bin:application/octet-stream:9:3:3:1:1.0:30:2800:0:M:b3c9d58c:",
		"D:0:0:0:3:1:0:" + b64("ABC"),
		"D:1:0:0:3:1:1:" + b64("DEF"),
		"D:2:0:0:3:1:2:" + b64("GHI"),
	}
	var frames []videosource.Frame
	for i, p := range payloads {
		marker := qrreader.MarkerLuminance(i)
		reader.Set(marker, p)
		frames = append(frames, videosource.Frame{
			Index: i, TimestampMs: int64(i) * 33, Luminance: marker, Width: 1, Height: 1,
		})
	}

	desc := chunkplan.Descriptor{FPS: 30, DurationMs: int64(len(payloads)) * 33, Width: 1, Height: 1}
	return videosource.NewFakeSource(desc, frames), reader
}

func TestOrchestratorReconstructsFileEndToEnd(t *testing.T) {
	outDir := t.TempDir()
	cfg := *config.Default()
	cfg.InputFile = "fixture.mp4"
	cfg.OutputDir = outDir
	cfg.ChunkCount = 1
	cfg.FrameStride = 1
	cfg.WorkerCount = 1

	src, reader := buildSingleChunkFixture(t)

	o := &Orchestrator{
		Config: cfg,
		Bus:    events.NewBus(),
		Reader: reader,
		NewSrc: func(string) (videosource.Source, error) { return src, nil },
		RunID:  "test-run",
	}

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.FilesWritten, 1)

	data, err := os.ReadFile(result.FilesWritten[0])
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHI", string(data))
	assert.Equal(t, filepath.Join(outDir, "f.bin"), result.FilesWritten[0])
}

func TestOrchestratorSkipsPhase2WhenAlreadyComplete(t *testing.T) {
	outDir := t.TempDir()
	cfg := *config.Default()
	cfg.InputFile = "fixture.mp4"
	cfg.OutputDir = outDir
	cfg.ChunkCount = 1
	cfg.FrameStride = 1
	cfg.WorkerCount = 1
	cfg.Criteria.QRCountTerminalMin = 1
	cfg.Criteria.QRCountNonTerminalMin = 1
	cfg.Criteria.FrameCoverageMin = 0.01
	cfg.Criteria.FrameSpanMin = 0.01

	src, reader := buildSingleChunkFixture(t)

	o := &Orchestrator{
		Config: cfg, Bus: events.NewBus(), Reader: reader,
		NewSrc: func(string) (videosource.Source, error) { return src, nil },
		RunID:  "run-1",
	}
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	// Running again with Phase3Only must reuse the existing sidecar
	// rather than re-extracting, and still reconstruct the file.
	src2, _ := buildSingleChunkFixture(t)
	o2 := &Orchestrator{
		Config: withPhase3Only(cfg), Bus: events.NewBus(), Reader: reader,
		NewSrc: func(string) (videosource.Source, error) { return src2, nil },
		RunID:  "run-2",
	}
	result, err := o2.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.FilesWritten, 1)
}

func withPhase3Only(cfg config.Config) config.Config {
	cfg.Phase3Only = true
	return cfg
}
