package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rmayorov/camstreamer/internal/config"
	"github.com/rmayorov/camstreamer/internal/pipeline"
)

// mockPipeline is a scripted controller for handler tests.
type mockPipeline struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	snap     pipeline.Snapshot
}

func (m *mockPipeline) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *mockPipeline) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockPipeline) Snapshot() pipeline.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func newTestServer(p Pipeline) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(p, logger)
}

func TestGetStatus(t *testing.T) {
	mp := &mockPipeline{snap: pipeline.Snapshot{
		State:     pipeline.StateStreaming,
		Streaming: true,
		StartedAt: time.Now().Add(-time.Minute),
		Width:     1920,
		Height:    1080,
		Framerate: 30,
		Bitrate:   2_500_000,
		Frames:    1800,
		Dropped:   2,
	}}
	srv := newTestServer(mp)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var data StatusData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if data.State != "streaming" || !data.Streaming {
		t.Errorf("state = %q streaming = %v", data.State, data.Streaming)
	}
	if data.Resolution != "1920x1080" {
		t.Errorf("resolution = %q", data.Resolution)
	}
	if data.StartTime == nil || data.UptimeSeconds < 59 {
		t.Errorf("start_time/uptime not populated: %v / %v", data.StartTime, data.UptimeSeconds)
	}
	if data.Frames != 1800 || data.DroppedFrames != 2 {
		t.Errorf("counters = %d/%d", data.Frames, data.DroppedFrames)
	}
}

func TestStartPipeline(t *testing.T) {
	mp := &mockPipeline{}
	srv := newTestServer(mp)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/start", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if mp.starts != 1 {
		t.Errorf("starts = %d, want 1", mp.starts)
	}
}

func TestStartPipelineConfigError(t *testing.T) {
	mp := &mockPipeline{startErr: &config.Error{Field: "stream_key", Reason: "must not be empty"}}
	srv := newTestServer(mp)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/start", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStartPipelineAlreadyRunning(t *testing.T) {
	mp := &mockPipeline{startErr: pipeline.ErrAlreadyRunning}
	srv := newTestServer(mp)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/start", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestStopPipelineAlwaysSucceeds(t *testing.T) {
	mp := &mockPipeline{}
	srv := newTestServer(mp)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/stop", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	}
	if mp.stops != 2 {
		t.Errorf("stops = %d, want 2", mp.stops)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&mockPipeline{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var data HealthData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if data.Status != "ok" {
		t.Errorf("status = %q, want ok", data.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockPipeline{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
