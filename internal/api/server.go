// Package api exposes the control and status HTTP API consumed by the
// external dashboard.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmayorov/camstreamer/internal/config"
	"github.com/rmayorov/camstreamer/internal/pipeline"
	"github.com/rmayorov/camstreamer/internal/version"
)

// Pipeline is the controller surface the API needs.
type Pipeline interface {
	Start() error
	Stop()
	Snapshot() pipeline.Snapshot
}

// Server hosts the huma v2 API plus the Prometheus and health
// endpoints.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	pipeline   Pipeline
	logger     *slog.Logger
}

// NewServer wires up all routes.
func NewServer(p Pipeline, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	cfg := huma.DefaultConfig("camstreamer API", version.String())
	cfg.Info.Description = "Control and status API for the camera streaming pipeline"
	// Relative paths so the API works behind any host or proxy.
	cfg.Servers = []*huma.Server{}

	s := &Server{
		api:      humago.New(mux, cfg),
		mux:      mux,
		pipeline: p,
		logger:   logger,
	}

	s.api.UseMiddleware(s.loggingMiddleware)

	mux.Handle("GET /metrics", promhttp.Handler())
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health",
		Description: "Check service health",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		return &HealthResponse{Body: HealthData{Status: "ok", Version: version.String()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Pipeline Status",
		Description: "Get the current pipeline status snapshot",
		Tags:        []string{"pipeline"},
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		return &StatusResponse{Body: toStatusData(s.pipeline.Snapshot())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-pipeline",
		Method:        http.MethodPost,
		Path:          "/api/pipeline/start",
		Summary:       "Start Pipeline",
		Description:   "Start streaming. Allowed from idle and failed states.",
		Tags:          []string{"pipeline"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{400, 409},
	}, func(ctx context.Context, input *struct{}) (*struct{}, error) {
		if err := s.pipeline.Start(); err != nil {
			return nil, s.mapPipelineError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "stop-pipeline",
		Method:        http.MethodPost,
		Path:          "/api/pipeline/stop",
		Summary:       "Stop Pipeline",
		Description:   "Stop streaming and release the camera and encoder. Idempotent.",
		Tags:          []string{"pipeline"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct{}) (*struct{}, error) {
		s.pipeline.Stop()
		return &struct{}{}, nil
	})
}

// mapPipelineError converts controller errors to HTTP errors: config
// problems are on the caller, an already-running pipeline is a
// conflict.
func (s *Server) mapPipelineError(err error) error {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return huma.Error400BadRequest(cfgErr.Error())
	}
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError("pipeline start failed", err)
}

func toStatusData(snap pipeline.Snapshot) StatusData {
	data := StatusData{
		State:         string(snap.State),
		Streaming:     snap.Streaming,
		Resolution:    fmt.Sprintf("%dx%d", snap.Width, snap.Height),
		Framerate:     snap.Framerate,
		Bitrate:       snap.Bitrate,
		Frames:        snap.Frames,
		DroppedFrames: snap.Dropped,
		Restarts:      snap.Restarts,
	}
	if !snap.StartedAt.IsZero() {
		started := snap.StartedAt.UTC().Format(time.RFC3339)
		data.StartTime = &started
		data.UptimeSeconds = time.Since(snap.StartedAt).Seconds()
	}
	if snap.LastError != "" {
		data.LastError = &snap.LastError
	}
	return data
}

func (s *Server) loggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	level := slog.LevelInfo
	if ctx.Status() >= 500 {
		level = slog.LevelError
	} else if ctx.Status() >= 400 {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx.Context(), level, "HTTP request completed",
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.Int("status", ctx.Status()),
		slog.Duration("duration", time.Since(start)),
	)
}

// Handler returns the root HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API on addr and blocks until the server closes.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
