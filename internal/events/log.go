package events

import "github.com/sirupsen/logrus"

// LogObserver logs one line per event via logrus.
type LogObserver struct {
	logger *logrus.Logger
}

func NewLogObserver(logger *logrus.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (l *LogObserver) QrObserved(e QrObservedEvent) {
	l.logger.WithFields(logrus.Fields{
		"chunk_id": e.ChunkID, "frame": e.FrameNumber, "timestamp_ms": e.TimestampMs, "bytes": e.PayloadSize,
	}).Debug("qr observed")
}

func (l *LogObserver) PhaseStarted(e PhaseStartedEvent) {
	l.logger.WithFields(logrus.Fields{"phase": e.Phase}).Info(e.Name + " started")
}

func (l *LogObserver) PhaseProgress(e PhaseProgressEvent) {
	l.logger.WithFields(logrus.Fields{"phase": e.Phase, "percent": e.Percentage}).Debug(e.Message)
}

func (l *LogObserver) PhaseComplete(e PhaseCompleteEvent) {
	l.logger.WithFields(logrus.Fields{"phase": e.Phase}).Info(e.Name + " complete")
}

func (l *LogObserver) ChunkComplete(e ChunkCompleteEvent) {
	l.logger.WithFields(logrus.Fields{
		"chunk_id": e.ChunkID, "qr_count": e.QRCount, "frames": e.FrameCount, "retrying": e.Retrying,
	}).Info("chunk complete")
}

func (l *LogObserver) FileReconstructed(e FileReconstructedEvent) {
	l.logger.WithFields(logrus.Fields{
		"file": e.FileName, "size": e.Size, "checksum": e.TransmitterCheck,
		"md5": e.MD5, "sha1": e.SHA1, "sha256": e.SHA256, "crc32": e.CRC32,
	}).Info("file reconstructed")
}

func (l *LogObserver) ChecksumValidation(e ChecksumValidationEvent) {
	fields := logrus.Fields{"file": e.FileName, "expected": e.Expected, "actual": e.Actual, "passed": e.Passed}
	if e.Passed {
		l.logger.WithFields(fields).Debug("checksum validated")
	} else {
		l.logger.WithFields(fields).Error("checksum mismatch")
	}
}

func (l *LogObserver) Warning(e WarningEvent) {
	l.logger.WithField("source", e.Source).Warn(e.Message)
}

func (l *LogObserver) Error(e ErrorEvent) {
	l.logger.WithField("source", e.Source).Error(e.Message)
}

var _ Observer = (*LogObserver)(nil)
