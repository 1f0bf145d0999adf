// Package statusserver is the optional HTTP operator surface started
// with --status: current run status as JSON, a websocket event
// stream, and Prometheus metrics. It is a pure observer — it never
// mutates run state.
package statusserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ArqonAi/qrx/internal/events"
	"github.com/ArqonAi/qrx/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ChunkStatus is one chunk's row in the /status response.
type ChunkStatus struct {
	ChunkID    int    `json:"chunk_id"`
	Status     string `json:"status"`
	QRCount    int    `json:"qr_count"`
	FrameCount int    `json:"frame_count"`
}

// Snapshot is the full payload GET /status returns. Server only ever
// reads a snapshot handed to it through SetSnapshot.
type Snapshot struct {
	Phase              int           `json:"phase"`
	PhaseName          string        `json:"phase_name"`
	Chunks             []ChunkStatus `json:"chunks"`
	FilesReconstructed []string      `json:"files_reconstructed"`
}

// Server wraps a gin engine exposing /status, /events, and /metrics.
type Server struct {
	engine   *gin.Engine
	bridge   *events.BridgeObserver
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	snapshot Snapshot
}

// New builds a Server. reg may be nil, in which case /metrics serves
// an empty registry rather than panicking.
func New(bridge *events.BridgeObserver, reg *metrics.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		bridge:   bridge,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	engine.GET("/status", s.handleStatus)
	engine.GET("/events", s.handleEvents)
	if reg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg.Registry, promhttp.HandlerOpts{})))
	}

	return s
}

// SetSnapshot replaces the status payload GET /status serves. Until it
// is called, /status serves the zero Snapshot; the orchestrator and
// cmd/qrx do not call it, so during a qrx run /status reports the zero
// Snapshot.
func (s *Server) SetSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.bridge == nil {
		return
	}
	sub := s.bridge.Subscribe(64)
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case env, ok := <-sub:
			if !ok {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}

// Run starts the HTTP server and blocks until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
