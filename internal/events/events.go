// Package events implements the run-wide event bus. Extraction
// workers, the fountain decoder, and the orchestrator publish to it;
// observers (terminal, log, websocket bridge) consume it. The bus
// dispatches to observers in the publishing goroutine — observers must
// not block, and events are not ordered with respect to sidecar
// writes, so consumers must treat them as hints rather than ground
// truth.
package events

import "time"

// QrObservedEvent mirrors a single QR observation emitted by an
// extraction worker, which publishes it after appending the
// observation to the chunk sidecar.
type QrObservedEvent struct {
	ChunkID     int
	FrameNumber int
	TimestampMs int64
	PayloadSize int
}

type PhaseStartedEvent struct {
	Phase int
	Name  string
}

type PhaseProgressEvent struct {
	Phase      int
	Name       string
	Percentage int
	Message    string
}

type PhaseCompleteEvent struct {
	Phase int
	Name  string
}

type ChunkCompleteEvent struct {
	ChunkID    int
	QRCount    int
	FrameCount int
	Retrying   bool
}

type FileReconstructedEvent struct {
	FileName         string
	Size             int64
	TransmitterCheck string
	MD5              string
	SHA1             string
	SHA256           string
	CRC32            string
}

type ChecksumValidationEvent struct {
	FileName string
	Expected string
	Actual   string
	Passed   bool
}

type WarningEvent struct {
	Source  string
	Message string
	At      time.Time
}

type ErrorEvent struct {
	Source  string
	Message string
	At      time.Time
}

// Observer is the open-ended consumer interface — the set of concrete
// observers (terminal, log, websocket bridge) is extensible without
// touching the bus or the publishers.
type Observer interface {
	QrObserved(QrObservedEvent)
	PhaseStarted(PhaseStartedEvent)
	PhaseProgress(PhaseProgressEvent)
	PhaseComplete(PhaseCompleteEvent)
	ChunkComplete(ChunkCompleteEvent)
	FileReconstructed(FileReconstructedEvent)
	ChecksumValidation(ChecksumValidationEvent)
	Warning(WarningEvent)
	Error(ErrorEvent)
}

// NullObserver discards every event. Embed it to implement Observer
// with only the methods you care about overridden.
type NullObserver struct{}

func (NullObserver) QrObserved(QrObservedEvent)                     {}
func (NullObserver) PhaseStarted(PhaseStartedEvent)                 {}
func (NullObserver) PhaseProgress(PhaseProgressEvent)               {}
func (NullObserver) PhaseComplete(PhaseCompleteEvent)               {}
func (NullObserver) ChunkComplete(ChunkCompleteEvent)               {}
func (NullObserver) FileReconstructed(FileReconstructedEvent)       {}
func (NullObserver) ChecksumValidation(ChecksumValidationEvent)     {}
func (NullObserver) Warning(WarningEvent)                           {}
func (NullObserver) Error(ErrorEvent)                               {}

var _ Observer = NullObserver{}
