// Package status publishes pipeline status snapshots: periodically,
// and immediately on every state transition. The file sink is what
// the external dashboard polls.
package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/renameio/v2"

	"github.com/rmayorov/camstreamer/internal/pipeline"
)

// document is the JSON layout of the status file.
type document struct {
	State         string  `json:"state"`
	Streaming     bool    `json:"streaming"`
	StartTime     *string `json:"start_time"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Resolution    string  `json:"resolution"`
	Framerate     int     `json:"framerate"`
	Bitrate       int     `json:"bitrate"`
	Frames        uint64  `json:"frames"`
	DroppedFrames uint64  `json:"dropped_frames"`
	Restarts      uint64  `json:"restarts"`
	LastError     *string `json:"last_error"`
}

// FileSink writes snapshots as JSON. Writes go through a rename so a
// concurrent reader never observes a torn file.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Publish serializes the snapshot and atomically replaces the status
// file.
func (s *FileSink) Publish(snap pipeline.Snapshot) error {
	doc := document{
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
		doc.StartTime = &started
		doc.UptimeSeconds = time.Since(snap.StartedAt).Seconds()
	}
	if snap.LastError != "" {
		doc.LastError = &snap.LastError
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(s.path, data, 0o644)
}
