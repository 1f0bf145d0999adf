// Command qrx extracts QR-encoded files from video and reconstructs
// them via fountain decoding.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArqonAi/qrx/internal/config"
	"github.com/ArqonAi/qrx/internal/errors"
	"github.com/ArqonAi/qrx/internal/events"
	"github.com/ArqonAi/qrx/internal/logging"
	"github.com/ArqonAi/qrx/internal/metrics"
	"github.com/ArqonAi/qrx/internal/orchestrator"
	"github.com/ArqonAi/qrx/internal/qrreader"
	"github.com/ArqonAi/qrx/internal/resume"
	"github.com/ArqonAi/qrx/internal/statusserver"
	"github.com/ArqonAi/qrx/internal/videosource"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qrx",
		Short: "Reconstruct files transmitted as QR codes in video",
	}
	root.AddCommand(newExtractCmd(), newResumeCmd(), newStatusCmd())
	return root
}

func newExtractCmd() *cobra.Command {
	cfg := config.Default()
	var statusEnabled bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract and reconstruct files from a video",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cfg, statusEnabled)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.InputFile, "input", "", "input video path")
	flags.StringVar(&cfg.OutputDir, "output", "", "output directory")
	flags.IntVar(&cfg.ChunkCount, "chunks", cfg.ChunkCount, "number of chunks")
	flags.Float64Var(&cfg.ChunkSeconds, "chunk-seconds", 0, "chunk duration in seconds (overrides --chunks)")
	flags.IntVar(&cfg.FrameStride, "stride", cfg.FrameStride, "process every Nth frame")
	flags.IntVar(&cfg.WorkerCount, "workers", cfg.WorkerCount, "worker count")
	flags.BoolVar(&cfg.Resume, "resume", false, "resume from existing resume_state.json")
	flags.BoolVar(&statusEnabled, "status", false, "enable the HTTP status server")
	flags.BoolVar(&cfg.Phase3Only, "phase3-only", false, "skip extraction, decode existing sidecars only")
	flags.StringVar(&cfg.StatusAddr, "status-addr", ":7777", "status server listen address")
	flags.DurationVar(&cfg.Timeout, "timeout", 0, "run timeout (0 = no timeout)")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "verbose logging")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")

	return cmd
}

func newResumeCmd() *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted extraction in --output",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, ok, err := resume.Load(cfg.ResumeStatePath())
			if err != nil {
				return errors.FatalConfig("failed to read resume state", err)
			}
			if !ok {
				return errors.FatalConfig(fmt.Sprintf("no resume state found in %s", cfg.OutputDir), nil)
			}

			cfg.Resume = true
			cfg.InputFile = state.InputFile
			cfg.ChunkCount = state.ChunkCount
			cfg.WorkerCount = state.ThreadCount
			cfg.FrameStride = state.SkipFrames

			return runExtract(cfg, false)
		},
	}
	cmd.Flags().StringVar(&cfg.OutputDir, "output", "", "output directory")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print resume state and per-chunk completion for --output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.OutputDir = outputDir
			state, ok, err := resume.Load(cfg.ResumeStatePath())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("no resume state found")
				return nil
			}
			fmt.Printf("run %s: phase %d completed, %d chunks tracked\n", state.RunID, state.PhaseCompleted, len(state.Chunks))
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output", "", "output directory")
	cmd.MarkFlagRequired("output")
	return cmd
}

func runExtract(cfg *config.Config, statusEnabled bool) error {
	if err := cfg.Validate(); err != nil {
		return errors.FatalConfig("invalid configuration", err)
	}
	if err := config.LoadFile(cfg, cfg.OutputDir+"/qrx.yaml"); err != nil {
		return errors.FatalConfig("invalid config file", err)
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	runID := fmt.Sprintf("%d", time.Now().UnixNano())
	logger, closeLog, err := logging.Setup(logDir, cfg.Verbose, runID)
	if err != nil {
		return errors.FatalConfig("failed to set up logging", err)
	}
	defer closeLog()

	bus := events.NewBus()
	bus.Subscribe(events.NewTerminalObserver())
	bus.Subscribe(events.NewLogObserver(logger))

	reg := metrics.NewRegistry()
	bus.Subscribe(metrics.NewObserver(reg))

	var bridge *events.BridgeObserver
	if statusEnabled {
		bridge = events.NewBridgeObserver()
		bus.Subscribe(bridge)
		srv := statusserver.New(bridge, reg)
		go func() {
			if err := srv.Run(context.Background(), cfg.StatusAddr); err != nil {
				logger.WithError(err).Warn("status server stopped")
			}
		}()

		live := config.NewLive(*cfg, cfg.OutputDir+"/qrx.yaml")
		done := make(chan struct{})
		defer close(done)
		if err := live.Watch(done, func(err error) {
			logger.WithError(err).Warn("config reload failed")
		}); err != nil {
			logger.WithError(err).Warn("config watch disabled")
		} else {
			logger.Info("watching qrx.yaml for live criteria reloads")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Timeout)
		defer timeoutCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	o := &orchestrator.Orchestrator{
		Config: *cfg,
		Bus:    bus,
		Reader: qrreader.NewGozxingReader(),
		NewSrc: func(path string) (videosource.Source, error) {
			return videosource.NewFFmpegSource(path)
		},
		RunID:   runID,
		NowUnix: func() int64 { return time.Now().Unix() },
	}

	result, err := o.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("reconstructed %d file(s), %d/%d chunks complete\n", len(result.FilesWritten), result.ChunksComplete, result.ChunksTotal)
	return nil
}
