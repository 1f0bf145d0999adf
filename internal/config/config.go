// Package config loads and validates qrx run configuration: CLI flags
// layered over an optional qrx.yaml file, plus the completion-criteria
// thresholds, which are intentionally configurable with the documented
// defaults pinned here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// CompletionCriteria pins the empirically-chosen completion defaults.
type CompletionCriteria struct {
	FrameCoverageMin       float64 `yaml:"frame_coverage_min"`
	FrameCoverageAdequate  float64 `yaml:"frame_coverage_adequate"`
	RangeCoverageMin       float64 `yaml:"range_coverage_min"`
	QRCountNonTerminalMin  int     `yaml:"qr_count_non_terminal_min"`
	QRCountTerminalMin     int     `yaml:"qr_count_terminal_min"`
	FrameSpanMin           float64 `yaml:"frame_span_min"`
}

// DefaultCompletionCriteria returns the pinned default thresholds.
func DefaultCompletionCriteria() CompletionCriteria {
	return CompletionCriteria{
		FrameCoverageMin:      0.95,
		FrameCoverageAdequate: 0.80,
		RangeCoverageMin:      0.90,
		QRCountNonTerminalMin: 300,
		QRCountTerminalMin:    200,
		FrameSpanMin:          0.80,
	}
}

// Config is the full set of knobs a run is parameterized by.
type Config struct {
	InputFile    string `yaml:"-"`
	OutputDir    string `yaml:"-"`
	ChunkCount   int    `yaml:"chunk_count"`
	ChunkSeconds float64 `yaml:"chunk_seconds"`
	FrameStride  int    `yaml:"frame_stride"`
	WorkerCount  int    `yaml:"worker_count"`

	Resume     bool `yaml:"-"`
	Phase3Only bool `yaml:"-"`
	StatusOnly bool `yaml:"-"`

	StatusAddr string        `yaml:"status_addr"`
	Timeout    time.Duration `yaml:"timeout"`
	Verbose    bool          `yaml:"verbose"`
	NoLog      bool          `yaml:"no_log"`
	LogDir     string        `yaml:"log_dir"`

	Criteria CompletionCriteria `yaml:"completion_criteria"`
}

// Default returns a Config with every field at its documented default.
// ChunkCount defaults to max(cpu/2, 4).
func Default() *Config {
	return &Config{
		ChunkCount:  defaultChunkCount(),
		FrameStride: 1,
		WorkerCount: defaultChunkCount(),
		Criteria:    DefaultCompletionCriteria(),
	}
}

func defaultChunkCount() int {
	n := runtime.NumCPU() / 2
	if n < 4 {
		n = 4
	}
	return n
}

// LoadFile merges a qrx.yaml file's fields into cfg, leaving fields the
// file doesn't set (zero-value) at whatever cfg already held. A
// missing file is not an error — it's the common case.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var onDisk Config
	onDisk.Criteria = cfg.Criteria
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if onDisk.ChunkCount != 0 {
		cfg.ChunkCount = onDisk.ChunkCount
	}
	if onDisk.ChunkSeconds != 0 {
		cfg.ChunkSeconds = onDisk.ChunkSeconds
	}
	if onDisk.FrameStride != 0 {
		cfg.FrameStride = onDisk.FrameStride
	}
	if onDisk.WorkerCount != 0 {
		cfg.WorkerCount = onDisk.WorkerCount
	}
	if onDisk.StatusAddr != "" {
		cfg.StatusAddr = onDisk.StatusAddr
	}
	if onDisk.Timeout != 0 {
		cfg.Timeout = onDisk.Timeout
	}
	if onDisk.LogDir != "" {
		cfg.LogDir = onDisk.LogDir
	}
	if onDisk.Verbose {
		cfg.Verbose = true
	}
	if onDisk.NoLog {
		cfg.NoLog = true
	}
	cfg.Criteria = onDisk.Criteria

	return nil
}

// Validate checks the configuration is internally consistent and that
// the filesystem paths it names are usable. Failures here are always
// KindFatalConfig — callers should abort before any work starts.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input video path is required")
	}
	if _, err := os.Stat(c.InputFile); err != nil {
		return fmt.Errorf("input video %s is not readable: %w", c.InputFile, err)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return fmt.Errorf("cannot create output directory %s: %w", c.OutputDir, err)
	}
	if c.ChunkCount <= 0 && c.ChunkSeconds <= 0 {
		return fmt.Errorf("either chunk_count or chunk_seconds must be positive")
	}
	if c.FrameStride <= 0 {
		return fmt.Errorf("frame_stride must be >= 1")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be >= 1")
	}
	return nil
}

// SidecarPath returns the deterministic path for chunk i's sidecar:
// <output>/chunk_{i+1:03}.jsonl.
func (c *Config) SidecarPath(chunkID int) string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("chunk_%03d.jsonl", chunkID+1))
}

// ResumeStatePath returns <output>/resume_state.json.
func (c *Config) ResumeStatePath() string {
	return filepath.Join(c.OutputDir, "resume_state.json")
}

// IntegrityReportPath returns <output>/integrity_report.json.
func (c *Config) IntegrityReportPath() string {
	return filepath.Join(c.OutputDir, "integrity_report.json")
}

// Live wraps a Config so it can be hot-reloaded from the on-disk
// qrx.yaml while a long-running --status server is up. Each reload
// merges the file through LoadFile, so every field LoadFile merges can
// change — chunk count, chunk seconds, frame stride and worker count
// as well as completion criteria, timeout and verbosity. Input and
// output paths are never read from the file and stay fixed.
type Live struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewLive snapshots cfg as the initial live configuration.
func NewLive(cfg Config, path string) *Live {
	return &Live{path: path, cfg: cfg}
}

// Snapshot returns the current configuration.
func (l *Live) Snapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch starts an fsnotify watch on the live config's backing file and
// merges each write event into the held configuration until done is
// closed. A missing file (not yet created) is not
// an error; the watch simply waits for it to appear.
func (l *Live) Watch(done <-chan struct{}, onErr func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				l.reload(onErr)
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onErr != nil {
					onErr(werr)
				}
			}
		}
	}()
	return nil
}

func (l *Live) reload(onErr func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := LoadFile(&l.cfg, l.path); err != nil && onErr != nil {
		onErr(err)
	}
}
