package events

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// TerminalObserver renders one live progress bar per phase and a
// colored summary line per completion/warning/error event, resetting
// the bar at each phase transition.
type TerminalObserver struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	curPhase int

	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
}

func NewTerminalObserver() *TerminalObserver {
	return &TerminalObserver{
		cyan:   color.New(color.FgCyan, color.Bold),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow, color.Bold),
		red:    color.New(color.FgRed, color.Bold),
	}
}

func (t *TerminalObserver) QrObserved(QrObservedEvent) {
	// High-frequency; the per-phase progress bar is the signal for
	// this, not a line per observation.
}

func (t *TerminalObserver) PhaseStarted(e PhaseStartedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.cyan.Printf("\n[phase %d] %s\n", e.Phase, e.Name)
	t.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription(e.Name),
		progressbar.OptionClearOnFinish(),
	)
	t.curPhase = e.Phase
}

func (t *TerminalObserver) PhaseProgress(e PhaseProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar == nil || t.curPhase != e.Phase {
		return
	}
	_ = t.bar.Set(e.Percentage)
}

func (t *TerminalObserver) PhaseComplete(e PhaseCompleteEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar != nil {
		_ = t.bar.Finish()
		t.bar = nil
	}
	_, _ = t.green.Printf("[phase %d] %s complete\n", e.Phase, e.Name)
}

func (t *TerminalObserver) ChunkComplete(e ChunkCompleteEvent) {
	status := "complete"
	if e.Retrying {
		status = "retrying"
	}
	fmt.Printf("  chunk %d: %s (%d QR codes, %d frames)\n", e.ChunkID, status, e.QRCount, e.FrameCount)
}

func (t *TerminalObserver) FileReconstructed(e FileReconstructedEvent) {
	_, _ = t.green.Printf("reconstructed %s (%d bytes, checksum %s)\n", e.FileName, e.Size, e.TransmitterCheck)
}

func (t *TerminalObserver) ChecksumValidation(e ChecksumValidationEvent) {
	if e.Passed {
		return
	}
	_, _ = t.red.Printf("checksum mismatch for %s: expected %s, got %s\n", e.FileName, e.Expected, e.Actual)
}

func (t *TerminalObserver) Warning(e WarningEvent) {
	_, _ = t.yellow.Printf("[%s] warning: %s\n", e.Source, e.Message)
}

func (t *TerminalObserver) Error(e ErrorEvent) {
	_, _ = t.red.Printf("[%s] error: %s\n", e.Source, e.Message)
}

var _ Observer = (*TerminalObserver)(nil)
