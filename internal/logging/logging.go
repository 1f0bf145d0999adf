// Package logging configures the process-wide logrus logger used by
// every worker and the orchestrator. Nothing is printed directly to
// stdout from worker goroutines; all worker output flows through the
// event bus (internal/events) or this logger's file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLogDir returns the default log directory following the XDG
// Base Directory spec, defaulting to ~/.local/state/qrx/logs.
func DefaultLogDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "qrx", "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "qrx", "logs")
	}
	return filepath.Join(home, ".local", "state", "qrx", "logs")
}

// Setup creates a logrus.Logger that writes JSON lines to a
// timestamped file under logDir, at debug level when verbose is set
// and at info level otherwise.
func Setup(logDir string, verbose bool, runID string) (*logrus.Logger, func() error, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	filename := fmt.Sprintf("qrx_run_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(logDir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	logger.SetOutput(file)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.WithField("run_id", runID).WithField("log_file", path).Info("qrx starting")

	return logger, file.Close, nil
}

// Discard returns a logger that writes nowhere, for tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
