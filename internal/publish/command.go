// Package publish owns the encode/publish subprocess: it builds the
// ffmpeg invocation, feeds it raw frames on stdin, and delivers the
// encoded stream to the remote ingest endpoint.
package publish

import (
	"fmt"
	"strings"

	"github.com/rmayorov/camstreamer/internal/config"
)

// Params holds everything needed to generate the encoder command.
type Params struct {
	// Input configuration (raw frames on stdin)
	PixelFormat string
	Width       int
	Height      int
	Framerate   int

	// Encoder configuration
	Bitrate          int
	KeyframeInterval int
	Preset           string

	// Audio
	AudioEnabled bool
	AudioSource  string

	// Output
	OutputURL string
}

// FromConfig maps a validated stream config onto encoder parameters.
func FromConfig(cfg *config.Stream) *Params {
	return &Params{
		PixelFormat:      string(cfg.PixelFormat),
		Width:            cfg.Width,
		Height:           cfg.Height,
		Framerate:        cfg.Framerate,
		Bitrate:          cfg.Bitrate,
		KeyframeInterval: cfg.KeyframeInterval,
		Preset:           cfg.Preset,
		AudioEnabled:     cfg.AudioEnabled,
		AudioSource:      cfg.AudioSource,
		OutputURL:        cfg.PublishURL(),
	}
}

// BuildCommand builds the ffmpeg command from structured parameters.
// Raw frames arrive on stdin; the subprocess encodes, muxes to FLV and
// pushes to the RTMP endpoint.
func BuildCommand(p *Params) string {
	var cmd strings.Builder

	cmd.WriteString("ffmpeg -hide_banner -loglevel level+info")

	// Raw video input from stdin
	cmd.WriteString(" -f rawvideo")
	cmd.WriteString(" -pix_fmt " + p.PixelFormat)
	cmd.WriteString(fmt.Sprintf(" -s %dx%d", p.Width, p.Height))
	cmd.WriteString(fmt.Sprintf(" -r %d", p.Framerate))
	cmd.WriteString(" -i -")

	// Audio input if enabled
	if p.AudioEnabled {
		cmd.WriteString(" -f alsa -ac 2 -ar 44100")
		cmd.WriteString(" -i " + p.AudioSource)
	}

	// Video encoding
	cmd.WriteString(" -c:v libx264")
	cmd.WriteString(" -preset " + p.Preset)
	cmd.WriteString(fmt.Sprintf(" -b:v %d", p.Bitrate))
	cmd.WriteString(fmt.Sprintf(" -maxrate %d", p.Bitrate))
	cmd.WriteString(fmt.Sprintf(" -bufsize %d", p.Bitrate*2))
	cmd.WriteString(" -pix_fmt yuv420p")
	cmd.WriteString(fmt.Sprintf(" -g %d", p.KeyframeInterval))
	cmd.WriteString(fmt.Sprintf(" -keyint_min %d", p.KeyframeInterval))
	cmd.WriteString(" -sc_threshold 0")

	// Audio encoding
	if p.AudioEnabled {
		cmd.WriteString(" -c:a aac -b:a 128k")
	}

	// RTMP output
	cmd.WriteString(" -f flv -flvflags no_duration_filesize " + p.OutputURL)

	return cmd.String()
}
