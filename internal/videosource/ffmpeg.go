package videosource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ArqonAi/qrx/internal/chunkplan"
)

// FFmpegSource is the one frame-source backend this module ships:
// it shells out to ffprobe once to build the Descriptor, then to
// ffmpeg once per frame to seek-and-decode (sub-second seek, one frame
// per invocation), generalized into a streaming iterator.
// Per-invocation isolation gives per-frame failure tolerance for free:
// one ffmpeg process dying only skips its one frame.
type FFmpegSource struct {
	path string
	desc chunkplan.Descriptor
}

// NewFFmpegSource probes path with ffprobe. An unreadable container is
// fatal to the caller.
func NewFFmpegSource(path string) (*FFmpegSource, error) {
	desc, err := probe(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video %s: %w", path, err)
	}
	return &FFmpegSource{path: path, desc: desc}, nil
}

func (s *FFmpegSource) Descriptor() chunkplan.Descriptor { return s.desc }

func (s *FFmpegSource) Close() error { return nil }

// Frames decodes every stride-th frame whose timestamp falls in
// [startMs, endMs), in increasing order.
func (s *FFmpegSource) Frames(ctx context.Context, startMs, endMs int64, stride int, onSkip func(int, error)) (<-chan Frame, error) {
	if stride <= 0 {
		stride = 1
	}
	if s.desc.FPS <= 0 {
		return nil, fmt.Errorf("video descriptor has non-positive fps %f", s.desc.FPS)
	}

	out := make(chan Frame)
	go func() {
		defer close(out)

		startFrame := int(math.Floor(float64(startMs) / 1000.0 * s.desc.FPS))
		endFrame := int(math.Ceil(float64(endMs) / 1000.0 * s.desc.FPS))

		for idx := startFrame; idx < endFrame; idx += stride {
			select {
			case <-ctx.Done():
				return
			default:
			}

			timestampMs := int64(float64(idx) / s.desc.FPS * 1000.0)
			frame, err := s.decodeOne(ctx, timestampMs, idx)
			if err != nil {
				if onSkip != nil {
					onSkip(idx, err)
				}
				continue
			}

			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// decodeOne extracts a single frame at timestampMs as a raw 8-bit
// luminance buffer. It first tries a strict scaling profile matching
// the descriptor's native resolution; on failure it retries once with
// no scale filter (looser profile) before giving up on this frame.
func (s *FFmpegSource) decodeOne(ctx context.Context, timestampMs int64, frameIndex int) (Frame, error) {
	seekArg := strconv.FormatFloat(float64(timestampMs)/1000.0, 'f', 3, 64)

	buf, w, h, err := s.runExtract(ctx, seekArg, fmt.Sprintf("scale=%d:%d:flags=lanczos", s.desc.Width, s.desc.Height), s.desc.Width, s.desc.Height)
	if err != nil {
		buf, w, h, err = s.runExtract(ctx, seekArg, "", 0, 0)
		if err != nil {
			return Frame{}, fmt.Errorf("frame %d: %w", frameIndex, err)
		}
	}

	return Frame{Index: frameIndex, TimestampMs: timestampMs, Luminance: buf, Width: w, Height: h}, nil
}

func (s *FFmpegSource) runExtract(ctx context.Context, seekArg, scaleFilter string, wantW, wantH int) ([]byte, int, int, error) {
	args := []string{"-ss", seekArg, "-i", s.path, "-frames:v", "1", "-vsync", "0", "-f", "rawvideo", "-pix_fmt", "gray"}
	if scaleFilter != "" {
		args = append(args, "-vf", scaleFilter)
	}
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return nil, 0, 0, fmt.Errorf("ffmpeg extract failed: %w", err)
	}

	w, h := wantW, wantH
	if w == 0 || h == 0 {
		w, h = s.desc.Width, s.desc.Height
	}
	data := stdout.Bytes()
	if w*h > 0 && len(data) < w*h {
		return nil, 0, 0, fmt.Errorf("short frame read: got %d bytes, want %d", len(data), w*h)
	}
	return data, w, h, nil
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat    `json:"format"`
	Streams []ffprobeStream  `json:"streams"`
}

func probe(path string) (chunkplan.Descriptor, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return chunkplan.Descriptor{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return chunkplan.Descriptor{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var video *ffprobeStream
	hasAudio := false
	for i := range parsed.Streams {
		st := &parsed.Streams[i]
		switch st.CodecType {
		case "video":
			if video == nil {
				video = st
			}
		case "audio":
			hasAudio = true
		}
	}
	if video == nil {
		return chunkplan.Descriptor{}, fmt.Errorf("no video stream found")
	}

	fps, err := parseFrameRate(video.RFrameRate)
	if err != nil {
		return chunkplan.Descriptor{}, err
	}

	durationSeconds, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return chunkplan.Descriptor{}, fmt.Errorf("failed to parse duration %q: %w", parsed.Format.Duration, err)
	}
	durationMs := int64(durationSeconds * 1000)

	return chunkplan.Descriptor{
		Width:       video.Width,
		Height:      video.Height,
		FPS:         fps,
		DurationMs:  durationMs,
		TotalFrames: int64(durationSeconds * fps),
		Container:   parsed.Format.FormatName,
		CodecName:   video.CodecName,
		HasAudio:    hasAudio,
	}, nil
}

func parseFrameRate(raw string) (float64, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse frame rate %q: %w", raw, err)
		}
		return v, nil
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse frame rate numerator %q: %w", raw, err)
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0, fmt.Errorf("failed to parse frame rate denominator %q: %w", raw, err)
	}
	return num / den, nil
}

var _ Source = (*FFmpegSource)(nil)
