// Package sidecar reads and writes the per-chunk JSONL files extraction
// workers append QR observations to.
package sidecar

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ArqonAi/qrx/internal/config"
)

// RecordType discriminates the three JSONL line shapes a sidecar can
// contain.
type RecordType string

const (
	RecordHeader  RecordType = "header"
	RecordQrCode  RecordType = "qr_code"
	RecordFooter  RecordType = "footer"
)

// VideoInfo is the optional first-line header payload.
type VideoInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	DurationMs  int64   `json:"duration_ms"`
	Container   string  `json:"container"`
	CodecName   string  `json:"codec_name"`
}

// Summary is the optional last-line footer payload.
type Summary struct {
	QRCodesFound  int `json:"qr_codes_found"`
	DuplicateCount int `json:"duplicate_count"`
	ErrorCount    int `json:"error_count"`
}

// Record is one decoded JSONL line, regardless of shape. Only the
// fields relevant to its Type are populated.
type Record struct {
	Type RecordType

	// header
	VideoInfo VideoInfo

	// qr_code
	FrameNumber int64
	TimestampMs int64
	Data        string
	ChunkID     int // present on the stripped backward-compatible variant

	// footer
	Summary Summary
}

type wireRecord struct {
	Type        string     `json:"type,omitempty"`
	VideoInfo   *VideoInfo `json:"video_info,omitempty"`
	FrameNumber *int64     `json:"frame_number,omitempty"`
	TimestampMs *int64     `json:"timestamp_ms,omitempty"`
	Data        *string    `json:"data,omitempty"`
	ChunkID     *int       `json:"chunk_id,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
}

// Writer appends records to a sidecar file, flushing after every line
// so a kill -9 mid-run leaves a resumable, truncation-safe file.
type Writer struct {
	f *os.File
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sidecar %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) WriteHeader(info VideoInfo) error {
	return w.writeLine(wireRecord{Type: string(RecordHeader), VideoInfo: &info})
}

func (w *Writer) WriteObservation(frameNumber, timestampMs int64, data string) error {
	return w.writeLine(wireRecord{
		Type:        string(RecordQrCode),
		FrameNumber: &frameNumber,
		TimestampMs: &timestampMs,
		Data:        &data,
	})
}

func (w *Writer) WriteFooter(summary Summary) error {
	return w.writeLine(wireRecord{Type: string(RecordFooter), Summary: &summary})
}

func (w *Writer) writeLine(rec wireRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal sidecar record: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.f.Write(b); err != nil {
		return fmt.Errorf("write sidecar record: %w", err)
	}
	return w.f.Sync()
}

func (w *Writer) Close() error { return w.f.Close() }

// Read parses every line of a sidecar file, accepting both the
// canonical {type,...} shape and the stripped backward-compatible
// variant {frame_number,data,chunk_id} with no "type" field.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open sidecar %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, ok, err := parseLine(line)
		if err != nil {
			continue // malformed line: skip, don't abort the whole sidecar
		}
		if ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return records, fmt.Errorf("scan sidecar %s: %w", path, err)
	}
	return records, nil
}

func parseLine(line []byte) (Record, bool, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, false, err
	}

	switch RecordType(w.Type) {
	case RecordHeader:
		if w.VideoInfo == nil {
			return Record{}, false, fmt.Errorf("header record missing video_info")
		}
		return Record{Type: RecordHeader, VideoInfo: *w.VideoInfo}, true, nil
	case RecordFooter:
		if w.Summary == nil {
			return Record{}, false, fmt.Errorf("footer record missing summary")
		}
		return Record{Type: RecordFooter, Summary: *w.Summary}, true, nil
	case RecordQrCode:
		return observationFromWire(w), true, nil
	case "":
		// Stripped backward-compatible variant: no "type" field, just
		// {frame_number,data,chunk_id}.
		if w.FrameNumber == nil || w.Data == nil {
			return Record{}, false, fmt.Errorf("stripped record missing frame_number/data")
		}
		return observationFromWire(w), true, nil
	default:
		return Record{}, false, fmt.Errorf("unknown sidecar record type %q", w.Type)
	}
}

func observationFromWire(w wireRecord) Record {
	rec := Record{Type: RecordQrCode}
	if w.FrameNumber != nil {
		rec.FrameNumber = *w.FrameNumber
	}
	if w.TimestampMs != nil {
		rec.TimestampMs = *w.TimestampMs
	}
	if w.Data != nil {
		rec.Data = *w.Data
	}
	if w.ChunkID != nil {
		rec.ChunkID = *w.ChunkID
	}
	return rec
}

// MaxFrameNumber returns the highest frame_number among qr_code
// records, and whether any observation was found at all. Used by the
// resume controller to find where an interrupted chunk left off.
func MaxFrameNumber(records []Record) (int64, bool) {
	var max int64
	found := false
	for _, r := range records {
		if r.Type != RecordQrCode {
			continue
		}
		if !found || r.FrameNumber > max {
			max = r.FrameNumber
			found = true
		}
	}
	return max, found
}

// Stats derives the completion-relevant counters from a parsed sidecar:
// observation count, distinct payload count (duplicates removed), and
// frame span (max - min + 1, zero if no observations).
type Stats struct {
	ObservationCount int
	DistinctCount    int
	DuplicateCount   int
	MinFrame         int64
	MaxFrame         int64
	FrameSpan        int64
}

func ComputeStats(records []Record) Stats {
	var s Stats
	seen := map[string]bool{}
	first := true
	for _, r := range records {
		if r.Type != RecordQrCode {
			continue
		}
		s.ObservationCount++
		if seen[r.Data] {
			s.DuplicateCount++
		} else {
			seen[r.Data] = true
			s.DistinctCount++
		}
		if first || r.FrameNumber < s.MinFrame {
			s.MinFrame = r.FrameNumber
		}
		if first || r.FrameNumber > s.MaxFrame {
			s.MaxFrame = r.FrameNumber
		}
		first = false
	}
	if !first {
		s.FrameSpan = s.MaxFrame - s.MinFrame + 1
	}
	return s
}

// IsComplete applies the configured completion criteria to a chunk's
// parsed sidecar, given the interval's expected frame count. A chunk
// is complete either strictly (high frame coverage, high range
// coverage reaching toward the chunk's far edge, a continuous frame
// span, and enough QR codes) or adequately (lower frame coverage but
// still enough QR codes to proceed).
func IsComplete(stats Stats, expectedFrames int64, terminal bool, criteria config.CompletionCriteria) bool {
	if expectedFrames <= 0 {
		return true
	}
	frameCoverage := float64(stats.ObservationCount) / float64(expectedFrames)
	rangeCoverage := float64(stats.MaxFrame) / float64(expectedFrames)
	spanCoverage := float64(stats.FrameSpan) / float64(expectedFrames)

	qrMin := criteria.QRCountNonTerminalMin
	if terminal {
		qrMin = criteria.QRCountTerminalMin
	}
	qrOK := stats.DistinctCount >= qrMin

	strictOK := frameCoverage >= criteria.FrameCoverageMin &&
		rangeCoverage >= criteria.RangeCoverageMin &&
		spanCoverage >= criteria.FrameSpanMin &&
		qrOK
	adequateOK := frameCoverage >= criteria.FrameCoverageAdequate && qrOK

	return strictOK || adequateOK
}
