// Package config provides stream configuration loading and validation,
// application option resolution, and config file watching.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PixelFormat identifies the raw frame layout produced by the camera.
type PixelFormat string

// Supported raw pixel formats.
const (
	FormatRGB24   PixelFormat = "rgb24"
	FormatYUV420P PixelFormat = "yuv420p"
)

// FrameSize returns the byte size of a single frame at the given
// resolution, or 0 for an unknown format.
func (f PixelFormat) FrameSize(width, height int) int {
	switch f {
	case FormatRGB24:
		return width * height * 3
	case FormatYUV420P:
		return width * height * 3 / 2
	default:
		return 0
	}
}

// presets accepted by the software encoder.
var presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow",
}

// Stream holds all parameters for a single publishing run. It is
// immutable once the pipeline starts; changes require a full stop.
type Stream struct {
	IngestURL        string      `toml:"ingest_url"`
	StreamKey        string      `toml:"stream_key"`
	Width            int         `toml:"width"`
	Height           int         `toml:"height"`
	Framerate        int         `toml:"framerate"`
	Bitrate          int         `toml:"bitrate"`
	KeyframeInterval int         `toml:"keyframe_interval"`
	Preset           string      `toml:"preset"`
	PixelFormat      PixelFormat `toml:"pixel_format"`
	AudioEnabled     bool        `toml:"audio_enabled"`
	AudioSource      string      `toml:"audio_source"`

	// CaptureCommand overrides the camera capture invocation. When
	// empty a default rpicam-vid command is generated.
	CaptureCommand string `toml:"capture_command"`
}

// DefaultStream returns the built-in stream defaults, matching a
// 1080p30 publish to an unset ingest target.
func DefaultStream() Stream {
	return Stream{
		IngestURL:   "rtmp://a.rtmp.youtube.com/live2/",
		Width:       1920,
		Height:      1080,
		Framerate:   30,
		Bitrate:     2_500_000,
		Preset:      "medium",
		PixelFormat: FormatYUV420P,
		AudioSource: "hw:1,0",
	}
}

// LoadStream reads and validates a stream configuration file. Values
// absent from the file keep their defaults.
func LoadStream(path string) (*Stream, error) {
	cfg := DefaultStream()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: "file", Reason: err.Error()}
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Field: "file", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills derived fields left at their zero value.
func (s *Stream) applyDefaults() {
	if s.KeyframeInterval == 0 && s.Framerate > 0 {
		s.KeyframeInterval = 2 * s.Framerate
	}
	if s.PixelFormat == "" {
		s.PixelFormat = FormatYUV420P
	}
}

// Validate checks every field and returns an *Error for the first
// out-of-range value. Validation must pass before any resource is
// acquired.
func (s *Stream) Validate() error {
	u, err := url.Parse(s.IngestURL)
	if err != nil || u.Host == "" {
		return &Error{Field: "ingest_url", Reason: "not a valid URL"}
	}
	if u.Scheme != "rtmp" && u.Scheme != "rtmps" {
		return &Error{Field: "ingest_url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if s.StreamKey == "" {
		return &Error{Field: "stream_key", Reason: "must not be empty"}
	}
	if s.Width <= 0 || s.Height <= 0 {
		return &Error{Field: "resolution", Reason: fmt.Sprintf("invalid %dx%d", s.Width, s.Height)}
	}
	if s.Framerate <= 0 {
		return &Error{Field: "framerate", Reason: "must be positive"}
	}
	if s.Bitrate <= 0 {
		return &Error{Field: "bitrate", Reason: "must be positive"}
	}
	if s.KeyframeInterval <= 0 {
		return &Error{Field: "keyframe_interval", Reason: "must be positive"}
	}
	if !slices.Contains(presets, s.Preset) {
		return &Error{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", s.Preset)}
	}
	if s.PixelFormat.FrameSize(s.Width, s.Height) == 0 {
		return &Error{Field: "pixel_format", Reason: fmt.Sprintf("unsupported format %q", s.PixelFormat)}
	}
	if s.AudioEnabled && s.AudioSource == "" {
		return &Error{Field: "audio_source", Reason: "required when audio is enabled"}
	}
	return nil
}

// FrameSize returns the byte size of one raw frame.
func (s *Stream) FrameSize() int {
	return s.PixelFormat.FrameSize(s.Width, s.Height)
}

// PublishURL returns the full ingest URL including the stream key.
// Never log the result.
func (s *Stream) PublishURL() string {
	return strings.TrimSuffix(s.IngestURL, "/") + "/" + s.StreamKey
}

// String renders the config with the stream key redacted.
func (s *Stream) String() string {
	return fmt.Sprintf("%s/<redacted> %dx%d@%dfps %dbps gop=%d preset=%s audio=%t",
		strings.TrimSuffix(s.IngestURL, "/"), s.Width, s.Height, s.Framerate,
		s.Bitrate, s.KeyframeInterval, s.Preset, s.AudioEnabled)
}

// LogValue implements slog.LogValuer so the stream key never reaches
// any log output.
func (s *Stream) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("ingest_url", s.IngestURL),
		slog.String("resolution", fmt.Sprintf("%dx%d", s.Width, s.Height)),
		slog.Int("framerate", s.Framerate),
		slog.Int("bitrate", s.Bitrate),
		slog.String("preset", s.Preset),
		slog.Bool("audio", s.AudioEnabled),
	)
}
