// Package metrics exposes run counters as Prometheus collectors,
// scraped by the status server at /metrics.
package metrics

import (
	"strconv"

	"github.com/ArqonAi/qrx/internal/events"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every qrx collector behind one Prometheus registry
// so the status server can hand a single handler to promhttp.
type Registry struct {
	Registry *prometheus.Registry

	FramesDecoded   prometheus.Counter
	FramesSkipped   prometheus.Counter
	QRCodesFound    *prometheus.CounterVec // labeled by chunk_id
	ChunksRecovered prometheus.Counter
	ChunksFailed    prometheus.Counter
	PeelIterations  prometheus.Counter
	FilesReconstructed prometheus.Counter
	ChecksumFailures   prometheus.Counter
}

// NewRegistry constructs and registers every qrx collector.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registry: reg,
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "frames_decoded_total", Help: "QR observations reported by extraction workers (one increment per observation).",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "frames_skipped_total", Help: "Frames that failed to decode and were skipped.",
		}),
		QRCodesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrx", Name: "qr_codes_found_total", Help: "Distinct QR payloads observed, by chunk.",
		}, []string{"chunk_id"}),
		ChunksRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "chunks_recovered_total", Help: "Extraction chunks that reached completion.",
		}),
		ChunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "chunks_failed_total", Help: "Extraction chunks marked failed.",
		}),
		PeelIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "peel_iterations_total", Help: "Fountain decoder peeling-loop iterations that recovered a chunk.",
		}),
		FilesReconstructed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "files_reconstructed_total", Help: "Files successfully reconstructed and written.",
		}),
		ChecksumFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrx", Name: "checksum_failures_total", Help: "Reconstructed files that failed checksum or structural validation.",
		}),
	}

	reg.MustRegister(
		r.FramesDecoded, r.FramesSkipped, r.QRCodesFound,
		r.ChunksRecovered, r.ChunksFailed, r.PeelIterations,
		r.FilesReconstructed, r.ChecksumFailures,
	)
	return r
}

// Observer adapts a Registry into an events.Observer so it can
// subscribe to the bus directly alongside the terminal/log observers.
type Observer struct {
	events.NullObserver
	reg *Registry
}

func NewObserver(reg *Registry) Observer {
	return Observer{reg: reg}
}

func (o Observer) QrObserved(e events.QrObservedEvent) {
	o.reg.FramesDecoded.Inc()
	o.reg.QRCodesFound.WithLabelValues(strconv.Itoa(e.ChunkID)).Inc()
}

func (o Observer) ChunkComplete(e events.ChunkCompleteEvent) {
	if e.Retrying {
		o.reg.ChunksFailed.Inc()
		return
	}
	o.reg.ChunksRecovered.Inc()
}

func (o Observer) FileReconstructed(events.FileReconstructedEvent) {
	o.reg.FilesReconstructed.Inc()
}

func (o Observer) ChecksumValidation(e events.ChecksumValidationEvent) {
	if !e.Passed {
		o.reg.ChecksumFailures.Inc()
	}
}

var _ events.Observer = Observer{}
